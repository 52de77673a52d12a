package core

import (
	"errors"
	"path/filepath"
	"strings"
)

// Layout maps an install root to the on-disk paths shared by install and launch.
// These paths are read by other launchers, so they must not change.
type Layout struct {
	Root string
}

// NewLayout creates a layout rooted at root
func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) VersionsDir() string  { return filepath.Join(l.Root, "versions") }
func (l Layout) LibrariesDir() string { return filepath.Join(l.Root, "libraries") }
func (l Layout) AssetsDir() string    { return filepath.Join(l.Root, "assets") }

// VersionDir is versions/<id>
func (l Layout) VersionDir(id string) string {
	return filepath.Join(l.VersionsDir(), id)
}

// VersionJSON is versions/<id>/<id>.json
func (l Layout) VersionJSON(id string) string {
	return filepath.Join(l.VersionDir(id), id+".json")
}

// VersionJar is versions/<id>/<id>.jar
func (l Layout) VersionJar(id string) string {
	return filepath.Join(l.VersionDir(id), id+".jar")
}

// NativesDir is versions/<id>/natives
func (l Layout) NativesDir(id string) string {
	return filepath.Join(l.VersionDir(id), "natives")
}

// Library resolves an artifact path (forward slashes) under libraries/
func (l Layout) Library(artifactPath string) string {
	return filepath.Join(l.LibrariesDir(), filepath.FromSlash(artifactPath))
}

// SafeLibrary is Library for paths read from a descriptor. It fails with
// ErrPathEscape when the path would resolve outside libraries/.
func (l Layout) SafeLibrary(artifactPath string) (string, error) {
	if artifactPath == "" {
		return "", ParseError("resolving library path", artifactPath, errors.New("empty artifact path"))
	}
	rel := filepath.FromSlash(artifactPath)
	if !filepath.IsLocal(rel) {
		return "", ParseError("resolving library path", artifactPath, ErrPathEscape)
	}
	return filepath.Join(l.LibrariesDir(), rel), nil
}

// CheckID rejects version and asset index IDs that do not name a single
// directory entry.
func CheckID(id string) error {
	if id == "" {
		return ParseError("checking id", id, errors.New("empty id"))
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) || !filepath.IsLocal(id) {
		return ParseError("checking id", id, ErrPathEscape)
	}
	return nil
}

// AssetIndex is assets/indexes/<id>.json
func (l Layout) AssetIndex(id string) string {
	return filepath.Join(l.AssetsDir(), "indexes", id+".json")
}

// AssetObject is assets/objects/<xx>/<hash>
func (l Layout) AssetObject(obj AssetObject) string {
	return filepath.Join(l.AssetsDir(), "objects", obj.Prefix(), obj.Hash)
}

// InstallState is versions/<id>/install-state.json
func (l Layout) InstallState(id string) string {
	return filepath.Join(l.VersionDir(id), "install-state.json")
}

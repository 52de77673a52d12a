// Package extract unpacks native library archives into a version's natives directory.
package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/quasar/mcinstall/internal/core"
)

// Options controls which entries are written
type Options struct {
	// Exclude holds glob patterns matched against slash-separated entry names.
	Exclude []string
}

// PrefixPatterns turns descriptor exclude prefixes such as "META-INF/" into
// glob patterns covering everything under them.
func PrefixPatterns(prefixes []string) []string {
	patterns := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		patterns = append(patterns, glob.QuoteMeta(p)+"**")
	}
	return patterns
}

// Zip extracts the archive held in data into dest and returns the paths
// written. Entries that would land outside dest are rejected before any of
// their content is written.
func Zip(data []byte, dest string, opts Options) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.ArchiveError("opening archive", dest, err)
	}

	excludes := make([]glob.Glob, 0, len(opts.Exclude))
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, core.ArchiveError("compiling exclude pattern", pattern, err)
		}
		excludes = append(excludes, g)
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, core.IOError("creating directory", dest, err)
	}

	var written []string
	for _, f := range r.File {
		if excluded(f.Name, excludes) {
			continue
		}

		target, err := entryPath(dest, f.Name)
		if err != nil {
			return written, core.ArchiveError("extracting", f.Name, err)
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return written, core.ArchiveError("extracting", f.Name,
				fmt.Errorf("symlink entry: %w", core.ErrPathEscape))
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return written, core.IOError("creating directory", target, err)
			}
			continue
		}

		if err := writeEntry(f, target); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}

func excluded(name string, excludes []glob.Glob) bool {
	for _, g := range excludes {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// entryPath resolves a zip entry name under dest
func entryPath(dest, name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("absolute entry %q: %w", name, core.ErrPathEscape)
	}

	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry %q leaves destination: %w", name, core.ErrPathEscape)
	}
	return target, nil
}

// writeEntry reads the whole entry, then writes it through a temp file
func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return core.ArchiveError("opening entry", f.Name, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return core.ArchiveError("reading entry", f.Name, err)
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return core.IOError("creating directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(target)+".*.tmp")
	if err != nil {
		return core.IOError("creating file", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return core.IOError("writing file", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return core.IOError("closing file", tmpPath, err)
	}
	if mode := f.Mode().Perm(); mode != 0 {
		os.Chmod(tmpPath, mode)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return core.IOError("renaming file", target, err)
	}
	return nil
}

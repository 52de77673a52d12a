// Package core version handling.
// Types for Mojang's version manifest, per-version descriptors and asset indexes.
package core

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// VersionType represents the type of Minecraft version
type VersionType string

const (
	VersionTypeRelease  VersionType = "release"
	VersionTypeSnapshot VersionType = "snapshot"
	VersionTypeOldBeta  VersionType = "old_beta"
	VersionTypeOldAlpha VersionType = "old_alpha"
)

// Version represents a Minecraft version from the manifest
type Version struct {
	ID          string      `json:"id"`
	Type        VersionType `json:"type"`
	URL         string      `json:"url"`
	ReleaseTime time.Time   `json:"releaseTime"`
	SHA1        string      `json:"sha1,omitempty"`
}

// VersionManifest is the root of Mojang's version manifest
type VersionManifest struct {
	Latest   LatestVersions `json:"latest"`
	Versions []Version      `json:"versions"`
}

// LatestVersions contains the latest release and snapshot
type LatestVersions struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

// VersionDetails contains full version metadata (from version JSON)
type VersionDetails struct {
	ID                 string         `json:"id"`
	Type               VersionType    `json:"type"`
	MainClass          string         `json:"mainClass"`
	MinecraftArguments string         `json:"minecraftArguments,omitempty"`
	Arguments          *Arguments     `json:"arguments,omitempty"`
	Libraries          []Library      `json:"libraries"`
	AssetIndex         AssetIndexRef  `json:"assetIndex"`
	Assets             string         `json:"assets"`
	Downloads          Downloads      `json:"downloads"`
	JavaVersion        JavaVersionReq `json:"javaVersion"`
	ReleaseTime        time.Time      `json:"releaseTime"`
	Time               time.Time      `json:"time"`
}

// Validate reports the first required field missing from a descriptor.
func (d *VersionDetails) Validate() error {
	switch {
	case d.Downloads.Client == nil || d.Downloads.Client.URL == "":
		return fmt.Errorf("missing field downloads.client.url")
	case d.AssetIndex.ID == "":
		return fmt.Errorf("missing field assetIndex.id")
	case d.AssetIndex.URL == "":
		return fmt.Errorf("missing field assetIndex.url")
	}
	return nil
}

// Arguments contains game and JVM arguments (modern format)
type Arguments struct {
	Game []Argument `json:"game"`
	JVM  []Argument `json:"jvm"`
}

// Argument is either a bare string or a rule-gated group of values.
type Argument struct {
	Rules  []Rule
	Values []string

	conditional bool
}

// UnmarshalJSON accepts "x", {"rules": [...], "value": "x"} and {"rules": [...], "value": ["x", "y"]}.
func (a *Argument) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Argument{Values: []string{s}}
		return nil
	}

	var raw struct {
		Rules []Rule          `json:"rules"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	values, err := decodeStringOrSlice(raw.Value)
	if err != nil {
		return fmt.Errorf("argument value: %w", err)
	}
	*a = Argument{Rules: raw.Rules, Values: values, conditional: true}
	return nil
}

// MarshalJSON writes the argument back in the shape it was read in.
func (a Argument) MarshalJSON() ([]byte, error) {
	if !a.conditional && len(a.Rules) == 0 && len(a.Values) == 1 {
		return json.Marshal(a.Values[0])
	}
	var value any = a.Values
	if len(a.Values) == 1 {
		value = a.Values[0]
	}
	return json.Marshal(struct {
		Rules []Rule `json:"rules,omitempty"`
		Value any    `json:"value"`
	}{a.Rules, value})
}

func decodeStringOrSlice(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var ss []string
	if err := json.Unmarshal(raw, &ss); err != nil {
		return nil, err
	}
	return ss, nil
}

// Library represents a dependency library
type Library struct {
	Name      string            `json:"name"`
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
	Natives   map[string]string `json:"natives,omitempty"`
	Extract   *ExtractRules     `json:"extract,omitempty"`
}

// NativeClassifier returns the classifier artifact for the platform, if the
// library ships one. A "${arch}" placeholder in the classifier name expands
// to the platform's bitness.
func (l *Library) NativeClassifier(p Platform) (string, *Artifact) {
	if l.Natives == nil || l.Downloads == nil || l.Downloads.Classifiers == nil {
		return "", nil
	}
	name, ok := l.Natives[p.OSKey()]
	if !ok || name == "" {
		return "", nil
	}
	name = strings.ReplaceAll(name, "${arch}", p.Bits())
	return name, l.Downloads.Classifiers[name]
}

// LibraryDownloads contains artifact download info
type LibraryDownloads struct {
	Artifact    *Artifact            `json:"artifact,omitempty"`
	Classifiers map[string]*Artifact `json:"classifiers,omitempty"`
}

// ExtractRules lists archive prefixes skipped when unpacking natives.
type ExtractRules struct {
	Exclude []string `json:"exclude,omitempty"`
}

// Artifact represents a downloadable file
type Artifact struct {
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Rule represents OS/feature-based conditions
type Rule struct {
	Action   string          `json:"action"` // allow or disallow
	OS       *OSRule         `json:"os,omitempty"`
	Features map[string]bool `json:"features,omitempty"`
}

// OSRule specifies OS conditions
type OSRule struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Arch    string `json:"arch,omitempty"`
}

// AssetIndexRef references the asset index
type AssetIndexRef struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
	URL       string `json:"url"`
}

// Downloads contains client/server download info
type Downloads struct {
	Client         *Artifact `json:"client,omitempty"`
	ClientMappings *Artifact `json:"client_mappings,omitempty"`
	Server         *Artifact `json:"server,omitempty"`
	ServerMappings *Artifact `json:"server_mappings,omitempty"`
}

// JavaVersionReq specifies required Java version
type JavaVersionReq struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

// AssetIndex is the parsed assets/indexes/<id>.json document.
type AssetIndex struct {
	Objects map[string]AssetObject `json:"objects"`
}

// Validate checks that every object hash can be content-addressed.
func (ai *AssetIndex) Validate() error {
	for name, obj := range ai.Objects {
		if len(obj.Hash) < 2 {
			return fmt.Errorf("asset %q: hash %q too short", name, obj.Hash)
		}
		if _, err := hex.DecodeString(obj.Hash); err != nil {
			return fmt.Errorf("asset %q: hash %q is not hex", name, obj.Hash)
		}
	}
	return nil
}

// AssetObject is a single content-addressed asset.
type AssetObject struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Prefix is the two-character directory an object is stored under.
func (o AssetObject) Prefix() string {
	return o.Hash[:2]
}

// RelPath is the object's path relative to both assets/objects and the CDN base.
func (o AssetObject) RelPath() string {
	return o.Prefix() + "/" + o.Hash
}

// URL builds the remote location of the object under base.
func (o AssetObject) URL(base string) string {
	return strings.TrimRight(base, "/") + "/" + o.RelPath()
}

// Package api contains HTTP clients for external services.
// The Mojang client lists versions and fetches per-version documents, persisting
// each document to the install root before it is parsed.
package api

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/httpclient"
)

const (
	DefaultManifestURL = "https://piston-meta.mojang.com/mc/game/version_manifest_v2.json"
)

// Filter selects which version types FetchCatalog keeps
type Filter struct {
	Release  bool
	Snapshot bool
	OldBeta  bool
	OldAlpha bool

	// Constraint is an optional semver constraint such as ">=1.13".
	// When set, IDs that do not parse as versions are dropped.
	Constraint string
}

// Allows reports whether the version type is enabled
func (f Filter) Allows(t core.VersionType) bool {
	switch t {
	case core.VersionTypeRelease:
		return f.Release
	case core.VersionTypeSnapshot:
		return f.Snapshot
	case core.VersionTypeOldBeta:
		return f.OldBeta
	case core.VersionTypeOldAlpha:
		return f.OldAlpha
	}
	return false
}

// MojangClient handles Mojang API interactions
type MojangClient struct {
	httpClient  *http.Client
	manifestURL string
	logger      logrus.FieldLogger
}

// Option configures a MojangClient
type Option func(*MojangClient)

// WithManifestURL overrides the version manifest location
func WithManifestURL(url string) Option {
	return func(c *MojangClient) { c.manifestURL = url }
}

// WithHTTPClient sets the client used for every request
func WithHTTPClient(client *http.Client) Option {
	return func(c *MojangClient) { c.httpClient = client }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *MojangClient) { c.logger = logger }
}

// NewMojangClient creates a new Mojang API client
func NewMojangClient(opts ...Option) *MojangClient {
	c := &MojangClient{
		manifestURL: DefaultManifestURL,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.New(httpclient.DefaultOptions())
	}
	return c
}

// GetVersionManifest fetches the version manifest from Mojang. Every call
// goes to the network.
func (c *MojangClient) GetVersionManifest(ctx context.Context) (*core.VersionManifest, error) {
	body, err := c.get(ctx, c.manifestURL)
	if err != nil {
		return nil, core.NetworkError("fetching version manifest", c.manifestURL, err)
	}

	var manifest core.VersionManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, core.ParseError("decoding version manifest", c.manifestURL, err)
	}

	return &manifest, nil
}

// FetchCatalog returns the manifest's versions whose type is enabled in the
// filter, in manifest order (newest first).
func (c *MojangClient) FetchCatalog(ctx context.Context, filter Filter) ([]core.Version, error) {
	var constraint *semver.Constraints
	if filter.Constraint != "" {
		var err error
		constraint, err = semver.NewConstraint(filter.Constraint)
		if err != nil {
			return nil, fmt.Errorf("invalid version constraint %q: %w", filter.Constraint, err)
		}
	}

	manifest, err := c.GetVersionManifest(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]core.Version, 0, len(manifest.Versions))
	for _, v := range manifest.Versions {
		if !filter.Allows(v.Type) {
			continue
		}
		if constraint != nil {
			sv, err := semver.NewVersion(v.ID)
			if err != nil || !constraint.Check(sv) {
				continue
			}
		}
		result = append(result, v)
	}

	return result, nil
}

// FindVersion finds a version by ID in the manifest
func (c *MojangClient) FindVersion(ctx context.Context, id string) (*core.Version, error) {
	manifest, err := c.GetVersionManifest(ctx)
	if err != nil {
		return nil, err
	}

	for _, v := range manifest.Versions {
		if v.ID == id {
			return &v, nil
		}
	}

	return nil, fmt.Errorf("version not found: %s", id)
}

// Latest resolves the newest release or snapshot
func (c *MojangClient) Latest(ctx context.Context, kind core.VersionType) (*core.Version, error) {
	manifest, err := c.GetVersionManifest(ctx)
	if err != nil {
		return nil, err
	}

	id := manifest.Latest.Release
	if kind == core.VersionTypeSnapshot {
		id = manifest.Latest.Snapshot
	}
	for _, v := range manifest.Versions {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("latest %s %q not listed in manifest", kind, id)
}

// FetchDescriptor downloads the version JSON, writes it verbatim to
// versions/<id>/<id>.json and only then parses it, so the file on disk is
// exactly what was parsed.
func (c *MojangClient) FetchDescriptor(ctx context.Context, version core.Version, root string) (*core.VersionDetails, error) {
	if err := core.CheckID(version.ID); err != nil {
		return nil, err
	}
	layout := core.NewLayout(root)
	dest := layout.VersionJSON(version.ID)

	if err := os.MkdirAll(layout.VersionDir(version.ID), 0755); err != nil {
		return nil, core.IOError("creating version directory", layout.VersionDir(version.ID), err)
	}

	c.logger.WithField("url", version.URL).Info("Downloading version descriptor")
	body, err := c.fetchVerified(ctx, version.URL, version.SHA1)
	if err != nil {
		return nil, core.NetworkError("fetching version descriptor", version.URL, err)
	}

	if err := writeFileAtomic(dest, body); err != nil {
		return nil, core.IOError("writing version descriptor", dest, err)
	}

	return parseDescriptor(body, dest)
}

// LoadDescriptor reads a previously persisted version JSON.
func LoadDescriptor(root, id string) (*core.VersionDetails, error) {
	if err := core.CheckID(id); err != nil {
		return nil, err
	}
	path := core.NewLayout(root).VersionJSON(id)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.IOError("reading version descriptor", path, err)
	}
	return parseDescriptor(data, path)
}

func parseDescriptor(data []byte, source string) (*core.VersionDetails, error) {
	var details core.VersionDetails
	if err := json.Unmarshal(data, &details); err != nil {
		return nil, core.ParseError("decoding version descriptor", source, err)
	}
	if err := details.Validate(); err != nil {
		return nil, core.ParseError("validating version descriptor", source, err)
	}
	return &details, nil
}

// FetchAssetIndex downloads the asset index to assets/indexes/<id>.json and parses it.
func (c *MojangClient) FetchAssetIndex(ctx context.Context, ref core.AssetIndexRef, root string) (*core.AssetIndex, error) {
	if err := core.CheckID(ref.ID); err != nil {
		return nil, err
	}
	dest := core.NewLayout(root).AssetIndex(ref.ID)

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, core.IOError("creating asset index directory", filepath.Dir(dest), err)
	}

	c.logger.WithField("url", ref.URL).Info("Downloading asset index")
	body, err := c.fetchVerified(ctx, ref.URL, ref.SHA1)
	if err != nil {
		return nil, core.NetworkError("fetching asset index", ref.URL, err)
	}

	if err := writeFileAtomic(dest, body); err != nil {
		return nil, core.IOError("writing asset index", dest, err)
	}

	var index core.AssetIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, core.ParseError("decoding asset index", dest, err)
	}
	if err := index.Validate(); err != nil {
		return nil, core.ParseError("validating asset index", dest, err)
	}

	return &index, nil
}

func (c *MojangClient) fetchVerified(ctx context.Context, url, wantSHA1 string) ([]byte, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	if wantSHA1 != "" {
		sum := sha1.Sum(body)
		if got := hex.EncodeToString(sum[:]); got != wantSHA1 {
			return nil, fmt.Errorf("hash mismatch: expected %s, got %s", wantSHA1, got)
		}
	}
	return body, nil
}

func (c *MojangClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &core.StatusError{Code: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// writeFileAtomic writes data next to path and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

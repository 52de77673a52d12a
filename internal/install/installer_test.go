package install

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/mcinstall/internal/core"
	"github.com/quasar/mcinstall/internal/rules"
)

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func nativesZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"liblwjgl.so":          "elf",
		"META-INF/MANIFEST.MF": "Manifest-Version: 1.0",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// stubServer serves a small but complete version: one client jar, one
// library, one native library, an osx-only library and three assets of
// which two share an object.
type stubServer struct {
	*httptest.Server
	mu        sync.Mutex
	hits      map[string]int
	fail      map[string]int // path -> status code
	files     map[string][]byte
	icon      []byte
	sound     []byte
	libBody   []byte
	native    []byte
	clientJar []byte
}

func newStubServer(t *testing.T) *stubServer {
	s := &stubServer{
		hits:      map[string]int{},
		fail:      map[string]int{},
		files:     map[string][]byte{},
		icon:      []byte("png-bytes"),
		sound:     []byte("ogg-bytes-longer"),
		libBody:   []byte("lib-bytes"),
		native:    nativesZip(t),
		clientJar: []byte("client-bytes"),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)

	iconObj := core.AssetObject{Hash: sha1Hex(s.icon), Size: int64(len(s.icon))}
	soundObj := core.AssetObject{Hash: sha1Hex(s.sound), Size: int64(len(s.sound))}
	index, err := json.Marshal(core.AssetIndex{Objects: map[string]core.AssetObject{
		"icons/icon_16x16.png":   iconObj,
		"minecraft/icons/16.png": iconObj,
		"sounds/click.ogg":       soundObj,
	}})
	require.NoError(t, err)

	details := core.VersionDetails{
		ID:        "1.20.1",
		Type:      core.VersionTypeRelease,
		MainClass: "net.minecraft.client.main.Main",
		AssetIndex: core.AssetIndexRef{
			ID: "5", URL: s.URL + "/indexes/5.json", SHA1: sha1Hex(index),
		},
		Assets: "5",
		Downloads: core.Downloads{
			Client: &core.Artifact{URL: s.URL + "/client.jar", SHA1: sha1Hex(s.clientJar), Size: int64(len(s.clientJar))},
		},
		Libraries: []core.Library{
			{
				Name: "org.lwjgl:lwjgl:3.3.1",
				Downloads: &core.LibraryDownloads{
					Artifact: &core.Artifact{
						Path: "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar",
						URL:  s.URL + "/lib.jar", SHA1: sha1Hex(s.libBody), Size: int64(len(s.libBody)),
					},
					Classifiers: map[string]*core.Artifact{
						"natives-linux": {
							Path: "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar",
							URL:  s.URL + "/natives-linux.jar", SHA1: sha1Hex(s.native), Size: int64(len(s.native)),
						},
					},
				},
				Natives: map[string]string{"linux": "natives-linux"},
				Extract: &core.ExtractRules{Exclude: []string{"META-INF/"}},
			},
			{
				Name:  "ca.weblite:java-objc-bridge:1.1",
				Rules: []core.Rule{{Action: "allow", OS: &core.OSRule{Name: "osx"}}},
				Downloads: &core.LibraryDownloads{Artifact: &core.Artifact{
					Path: "ca/weblite/java-objc-bridge/1.1/java-objc-bridge-1.1.jar",
					URL:  s.URL + "/objc.jar",
				}},
			},
		},
	}
	descriptor, err := json.Marshal(details)
	require.NoError(t, err)

	s.files["/version.json"] = descriptor
	s.files["/indexes/5.json"] = index
	s.files["/client.jar"] = s.clientJar
	s.files["/lib.jar"] = s.libBody
	s.files["/natives-linux.jar"] = s.native
	s.files["/objc.jar"] = []byte("objc")
	s.files["/objects/"+iconObj.RelPath()] = s.icon
	s.files["/objects/"+soundObj.RelPath()] = s.sound
	return s
}

func (s *stubServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	code := s.fail[r.URL.Path]
	body, ok := s.files[r.URL.Path]
	s.mu.Unlock()

	if code != 0 {
		w.WriteHeader(code)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(body)
}

func (s *stubServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// editDescriptor rewrites the served version JSON as a generic document
func (s *stubServer) editDescriptor(t *testing.T, edit func(doc map[string]any)) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc map[string]any
	require.NoError(t, json.Unmarshal(s.files["/version.json"], &doc))
	edit(doc)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	s.files["/version.json"] = data
}

func (s *stubServer) failPath(path string, code int) {
	s.mu.Lock()
	s.fail[path] = code
	s.mu.Unlock()
}

func (s *stubServer) record() core.Version {
	return core.Version{ID: "1.20.1", Type: core.VersionTypeRelease, URL: s.URL + "/version.json"}
}

func testOptions(s *stubServer, root string) Options {
	logger, _ := test.NewNullLogger()
	return Options{
		Root:         root,
		HTTPTimeout:  5 * time.Second,
		PoolSize:     3,
		Retries:      0,
		Platform:     core.Platform{OS: "linux", Arch: "x86_64"},
		RuleMode:     rules.ModeLegacy,
		AssetBaseURL: s.URL + "/objects",
		Logger:       logger,
	}
}

func TestInstall_EndToEnd(t *testing.T) {
	s := newStubServer(t)
	root := t.TempDir()

	statusChan := make(chan Status, 100)
	result, err := New(testOptions(s, root), statusChan).Install(context.Background(), s.record())
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "net.minecraft.client.main.Main", result.Descriptor.MainClass)
	assert.Len(t, result.Report.Succeeded, 5, "client, library, native and two distinct assets")
	assert.Empty(t, result.Report.Failed)

	iconRel := "assets/objects/" + sha1Hex(s.icon)[:2] + "/" + sha1Hex(s.icon)
	soundRel := "assets/objects/" + sha1Hex(s.sound)[:2] + "/" + sha1Hex(s.sound)
	expect := []struct {
		rel  string
		want []byte
	}{
		{"versions/1.20.1/1.20.1.json", s.files["/version.json"]},
		{"versions/1.20.1/1.20.1.jar", s.clientJar},
		{"versions/1.20.1/natives/liblwjgl.so", []byte("elf")},
		{"libraries/org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1.jar", s.libBody},
		{"libraries/org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar", s.native},
		{"assets/indexes/5.json", s.files["/indexes/5.json"]},
		{iconRel, s.icon},
		{soundRel, s.sound},
	}
	for _, e := range expect {
		got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.rel)))
		require.NoError(t, err, e.rel)
		assert.Equal(t, e.want, got, e.rel)
	}

	assert.Equal(t, []string{filepath.Join(root, "versions", "1.20.1", "natives", "liblwjgl.so")}, result.Natives)
	assert.NoDirExists(t, filepath.Join(root, "versions", "1.20.1", "natives", "META-INF"))
	assert.Zero(t, s.hitCount("/objc.jar"), "osx-only library must not be fetched on linux")
	assert.Equal(t, 1, s.hitCount("/objects/"+sha1Hex(s.icon)[:2]+"/"+sha1Hex(s.icon)), "shared object fetched once")

	close(statusChan)
	var last Status
	var steps []string
	for st := range statusChan {
		if len(steps) == 0 || steps[len(steps)-1] != st.Step {
			steps = append(steps, st.Step)
		}
		last = st
	}
	assert.True(t, last.IsComplete)
	assert.NoError(t, last.Error)
	assert.Contains(t, steps, "Fetching version descriptor")
	assert.Contains(t, steps, "Downloading files")
}

func TestInstall_SecondRunReusesFiles(t *testing.T) {
	s := newStubServer(t)
	root := t.TempDir()
	opts := testOptions(s, root)

	_, err := New(opts, nil).Install(context.Background(), s.record())
	require.NoError(t, err)

	// natives are re-extracted even though the archive is reused
	nativeFile := filepath.Join(root, "versions", "1.20.1", "natives", "liblwjgl.so")
	require.NoError(t, os.Remove(nativeFile))

	result, err := New(opts, nil).Install(context.Background(), s.record())
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.Equal(t, 5, result.Report.Skipped)
	assert.Zero(t, result.Report.Bytes)
	assert.Equal(t, 1, s.hitCount("/client.jar"))
	assert.FileExists(t, nativeFile)
}

func TestInstall_PartialFailure(t *testing.T) {
	s := newStubServer(t)
	root := t.TempDir()
	soundPath := "/objects/" + sha1Hex(s.sound)[:2] + "/" + sha1Hex(s.sound)
	s.failPath(soundPath, http.StatusInternalServerError)

	result, err := New(testOptions(s, root), nil).Install(context.Background(), s.record())
	require.NoError(t, err, "per-file failures are not fatal")

	var partial *PartialFailureError
	require.True(t, errors.As(result.Err(), &partial))
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, 5, partial.Total)
	assert.True(t, strings.HasPrefix(partial.Error(), "1 of 5 downloads failed"))

	var status *core.StatusError
	require.True(t, errors.As(result.Err(), &status))
	assert.Equal(t, http.StatusInternalServerError, status.Code)

	// siblings completed
	assert.FileExists(t, filepath.Join(root, "versions", "1.20.1", "1.20.1.jar"))
	assert.FileExists(t, filepath.Join(root, "assets", "objects", sha1Hex(s.icon)[:2], sha1Hex(s.icon)))
	assert.NoFileExists(t, filepath.Join(root, "assets", "objects", sha1Hex(s.sound)[:2], sha1Hex(s.sound)))
}

func TestInstall_FatalBeforeDownloads(t *testing.T) {
	s := newStubServer(t)

	t.Run("descriptor unavailable", func(t *testing.T) {
		s.failPath("/version.json", http.StatusNotFound)
		defer s.failPath("/version.json", 0)

		result, err := New(testOptions(s, t.TempDir()), nil).Install(context.Background(), s.record())
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, core.IsKind(err, core.KindNetwork))
		assert.Zero(t, s.hitCount("/client.jar"))
	})

	t.Run("asset index tampered", func(t *testing.T) {
		s.mu.Lock()
		good := s.files["/indexes/5.json"]
		s.files["/indexes/5.json"] = []byte(`{"objects": {"x": {"hash": "z", "size": 1}}}`)
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			s.files["/indexes/5.json"] = good
			s.mu.Unlock()
		}()

		_, err := New(testOptions(s, t.TempDir()), nil).Install(context.Background(), s.record())
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.KindNetwork), "the descriptor pins the index hash")
	})

	t.Run("root not creatable", func(t *testing.T) {
		parent := t.TempDir()
		file := filepath.Join(parent, "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

		_, err := New(testOptions(s, filepath.Join(file, "root")), nil).Install(context.Background(), s.record())
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.KindIO))
	})
}

func TestInstall_Cancelled(t *testing.T) {
	s := newStubServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testOptions(s, t.TempDir()), nil).Install(ctx, s.record())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssetTasks_OrderAndDedup(t *testing.T) {
	layout := core.NewLayout("/root")
	index := &core.AssetIndex{Objects: map[string]core.AssetObject{
		"b": {Hash: "bb" + strings.Repeat("0", 38), Size: 10},
		"a": {Hash: "aa" + strings.Repeat("0", 38), Size: 5},
		"c": {Hash: "cc" + strings.Repeat("0", 38), Size: 50},
		"d": {Hash: "aa" + strings.Repeat("0", 38), Size: 5},
	}}

	byPath := assetTasks(layout, index, "https://cdn.example/", false)
	require.Len(t, byPath, 3)
	assert.Equal(t, "https://cdn.example/aa/aa"+strings.Repeat("0", 38), byPath[0].URL)
	assert.Equal(t, int64(10), byPath[1].Size)

	bySize := assetTasks(layout, index, "https://cdn.example", true)
	require.Len(t, bySize, 3)
	assert.Equal(t, []int64{50, 10, 5}, []int64{bySize[0].Size, bySize[1].Size, bySize[2].Size})
	assert.Equal(t, filepath.Join("/root", "assets", "objects", "cc", "cc"+strings.Repeat("0", 38)), bySize[0].Path)
}

func TestLibraryTasks_RuleModes(t *testing.T) {
	details := &core.VersionDetails{
		ID: "x",
		Libraries: []core.Library{{
			Name: "mixed",
			// allow everywhere, then an osx-only allow
			Rules: []core.Rule{{Action: "allow"}, {Action: "allow", OS: &core.OSRule{Name: "osx"}}},
			Downloads: &core.LibraryDownloads{Artifact: &core.Artifact{Path: "m.jar", URL: "http://x/m.jar"}},
		}},
	}
	linux := core.Platform{OS: "linux", Arch: "x86_64"}

	legacy, err := libraryTasks(core.NewLayout("/r"), "x", details, Options{Platform: linux, RuleMode: rules.ModeLegacy}, &nativeSink{})
	require.NoError(t, err)
	assert.Empty(t, legacy)

	accumulate, err := libraryTasks(core.NewLayout("/r"), "x", details, Options{Platform: linux, RuleMode: rules.ModeAccumulate}, &nativeSink{})
	require.NoError(t, err)
	assert.Len(t, accumulate, 1)
}

func TestLibraryTasks_RejectsUnsafePaths(t *testing.T) {
	linux := core.Platform{OS: "linux", Arch: "x86_64"}
	opts := Options{Platform: linux, RuleMode: rules.ModeLegacy}

	tests := []struct {
		name string
		lib  core.Library
	}{
		{"artifact escapes", core.Library{Name: "a", Downloads: &core.LibraryDownloads{
			Artifact: &core.Artifact{Path: "../../escaped.jar", URL: "http://x/a.jar"},
		}}},
		{"artifact without path", core.Library{Name: "b", Downloads: &core.LibraryDownloads{
			Artifact: &core.Artifact{URL: "http://x/b.jar"},
		}}},
		{"native escapes", core.Library{
			Name:    "n",
			Natives: map[string]string{"linux": "natives-linux"},
			Downloads: &core.LibraryDownloads{Classifiers: map[string]*core.Artifact{
				"natives-linux": {Path: "/tmp/n.jar", URL: "http://x/n.jar"},
			}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := &core.VersionDetails{Libraries: []core.Library{tt.lib}}
			_, err := libraryTasks(core.NewLayout("/r"), "x", details, opts, &nativeSink{})
			require.Error(t, err)
			assert.True(t, core.IsKind(err, core.KindParse))
		})
	}
}

func TestInstall_DescriptorWithoutID(t *testing.T) {
	s := newStubServer(t)
	s.editDescriptor(t, func(doc map[string]any) { delete(doc, "id") })
	root := t.TempDir()

	result, err := New(testOptions(s, root), nil).Install(context.Background(), s.record())
	require.NoError(t, err)
	require.NoError(t, result.Err())

	assert.FileExists(t, filepath.Join(root, "versions", "1.20.1", "1.20.1.jar"))
	assert.FileExists(t, filepath.Join(root, "versions", "1.20.1", "natives", "liblwjgl.so"))
	assert.NoFileExists(t, filepath.Join(root, "versions", ".jar"))
	assert.NoDirExists(t, filepath.Join(root, "versions", "natives"))
}

func TestInstall_EscapingLibraryPath(t *testing.T) {
	s := newStubServer(t)
	s.editDescriptor(t, func(doc map[string]any) {
		lib := doc["libraries"].([]any)[0].(map[string]any)
		artifact := lib["downloads"].(map[string]any)["artifact"].(map[string]any)
		artifact["path"] = "../../escaped.jar"
	})
	parent := t.TempDir()
	root := filepath.Join(parent, "a", "root")

	result, err := New(testOptions(s, root), nil).Install(context.Background(), s.record())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, core.IsKind(err, core.KindParse))
	assert.ErrorIs(t, err, core.ErrPathEscape)
	assert.NoFileExists(t, filepath.Join(parent, "escaped.jar"))
	assert.NoFileExists(t, filepath.Join(parent, "a", "escaped.jar"))
	assert.Zero(t, s.hitCount("/lib.jar"))
}

func TestInstall_UnsafeVersionID(t *testing.T) {
	s := newStubServer(t)
	root := t.TempDir()
	record := s.record()
	record.ID = ".."

	_, err := New(testOptions(s, root), nil).Install(context.Background(), record)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindParse))
	assert.Zero(t, s.hitCount("/version.json"))
}

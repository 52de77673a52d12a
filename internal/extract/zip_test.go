package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quasar/mcinstall/internal/core"
)

type entry struct {
	name string
	body string
	mode os.FileMode
}

func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.name, Method: zip.Deflate}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestZip_ExtractsFilesAndDirs(t *testing.T) {
	data := buildZip(t,
		entry{name: "liblwjgl.so", body: "elf"},
		entry{name: "org/"},
		entry{name: "org/lwjgl/liblwjgl_opengl.so", body: "gl"},
	)
	dest := filepath.Join(t.TempDir(), "natives")

	written, err := Zip(data, dest, Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dest, "liblwjgl.so"),
		filepath.Join(dest, "org", "lwjgl", "liblwjgl_opengl.so"),
	}, written)

	got, err := os.ReadFile(filepath.Join(dest, "org", "lwjgl", "liblwjgl_opengl.so"))
	require.NoError(t, err)
	assert.Equal(t, "gl", string(got))
	assert.DirExists(t, filepath.Join(dest, "org"))
}

func TestZip_OverwritesExisting(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "a.dll"), []byte("old"), 0644))

	_, err := Zip(buildZip(t, entry{name: "a.dll", body: "new"}), dest, Options{})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dest, "a.dll"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestZip_Excludes(t *testing.T) {
	data := buildZip(t,
		entry{name: "META-INF/MANIFEST.MF", body: "Manifest-Version: 1.0"},
		entry{name: "META-INF/sub/x.SF", body: "sig"},
		entry{name: "lwjgl.dll", body: "pe"},
		entry{name: "notes.txt", body: "n"},
	)
	dest := t.TempDir()

	patterns := append(PrefixPatterns([]string{"META-INF/"}), "*.txt")
	written, err := Zip(data, dest, Options{Exclude: patterns})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dest, "lwjgl.dll")}, written)
	assert.NoDirExists(t, filepath.Join(dest, "META-INF"))
	assert.NoFileExists(t, filepath.Join(dest, "notes.txt"))
}

func TestPrefixPatterns(t *testing.T) {
	assert.Equal(t, []string{"META-INF/**"}, PrefixPatterns([]string{"META-INF/", ""}))
	assert.Equal(t, []string{`a\*b/**`}, PrefixPatterns([]string{"a*b/"}))
}

func TestZip_RejectsEscapingEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry entry
	}{
		{"parent traversal", entry{name: "../evil.so", body: "x"}},
		{"nested traversal", entry{name: "a/../../evil.so", body: "x"}},
		{"absolute", entry{name: "/tmp/evil.so", body: "x"}},
		{"symlink", entry{name: "link", body: "/etc/passwd", mode: os.ModeSymlink | 0777}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent := t.TempDir()
			dest := filepath.Join(parent, "natives")

			_, err := Zip(buildZip(t, tt.entry), dest, Options{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrPathEscape), "got %v", err)
			assert.True(t, core.IsKind(err, core.KindArchive))

			assert.NoFileExists(t, filepath.Join(parent, "evil.so"))
			entries, err := os.ReadDir(dest)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestZip_InnerDotDotStaysInside(t *testing.T) {
	dest := t.TempDir()
	written, err := Zip(buildZip(t, entry{name: "a/../b.so", body: "ok"}), dest, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dest, "b.so")}, written)
}

func TestZip_Malformed(t *testing.T) {
	_, err := Zip([]byte("definitely not a zip"), t.TempDir(), Options{})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindArchive))
}

func TestZip_BadPattern(t *testing.T) {
	_, err := Zip(buildZip(t, entry{name: "a", body: "a"}), t.TempDir(), Options{Exclude: []string{"[unclosed"}})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindArchive))
}

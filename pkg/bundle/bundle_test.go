package bundle

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() Manifest {
	return Manifest{
		Name:    "python-tools",
		License: "MIT",
		Version: "1.0.0",
		Artifacts: []Artifact{
			{Name: "lint", Type: "skill", Path: "skills/lint/SKILL.md", License: "MIT"},
			{Name: "format", Type: "skill", Path: "skills/format/SKILL.md", License: "Apache-2.0"},
		},
	}
}

func testFiles() map[string][]byte {
	return map[string][]byte{
		"skills/lint/SKILL.md":   []byte("# Lint\nRuns the linter."),
		"skills/format/SKILL.md": []byte("# Format\nFormats code."),
	}
}

func TestPackAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "python-tools.zip")

	packed, err := Pack(path, testManifest(), testFiles())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(packed.Hash, HashPrefix))
	assert.Equal(t, packed.Hash, packed.RecordedHash())

	opened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "python-tools", opened.Manifest.Name)
	assert.Equal(t, packed.Hash, opened.Hash)
	assert.Equal(t, opened.Hash, opened.RecordedHash())
	assert.Len(t, opened.Artifacts(), 2)
	assert.ElementsMatch(t, []string{"MIT", "Apache-2.0"}, opened.ArtifactLicenses())
	assert.False(t, opened.IsSigned())
}

func TestComputeHash_MatchesOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.zip")
	_, err := Pack(path, testManifest(), testFiles())
	require.NoError(t, err)

	h, err := ComputeHash(path)
	require.NoError(t, err)

	b, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, b.Hash, h)
}

func TestComputeHash_ChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	files := testFiles()

	a, err := Pack(filepath.Join(dir, "a.zip"), testManifest(), files)
	require.NoError(t, err)

	files["skills/lint/SKILL.md"] = []byte("# Lint\nRuns a different linter.")
	b, err := Pack(filepath.Join(dir, "b.zip"), testManifest(), files)
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestCreate_KeepsStaleDigest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stale.zip")
	m := testManifest()
	m.BundleHash = "sha256:deadbeef"

	_, err := Create(path, m, testFiles())
	require.NoError(t, err)

	b, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "sha256:deadbeef", b.RecordedHash())
	assert.NotEqual(t, b.Hash, b.RecordedHash())
}

func TestPack_WithSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signed.zip")

	var gotHash string
	signer := func(hash string, manifest map[string]any) (*Signature, error) {
		gotHash = hash
		assert.Equal(t, "python-tools", manifest["name"])
		_, hasSig := manifest["signature"]
		assert.False(t, hasSig)
		return &Signature{KeyID: "k1", Algorithm: "ed25519", Value: "c2ln"}, nil
	}

	packed, err := Pack(path, testManifest(), testFiles(), WithSigner(signer))
	require.NoError(t, err)
	assert.Equal(t, packed.Hash, gotHash)

	b, err := Open(path)
	require.NoError(t, err)
	assert.True(t, b.IsSigned())
	assert.Equal(t, "k1", b.Manifest.Signature.KeyID)
	assert.Contains(t, b.ToMap(), "signature")
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	notZip := filepath.Join(dir, "plain.zip")
	require.NoError(t, os.WriteFile(notZip, []byte("not an archive"), 0644))

	noManifest := filepath.Join(dir, "nomanifest.zip")
	f, err := os.Create(noManifest)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("readme.md")
	require.NoError(t, err)
	_, _ = w.Write([]byte("hello"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.zip"), wantErr: ErrNotFound},
		{name: "directory", path: dir, wantErr: ErrNotRegularFile},
		{name: "not a zip", path: notZip, wantErr: ErrInvalidArchive},
		{name: "no manifest", path: noManifest, wantErr: ErrMissingManifest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsInvalidBundleError(err))
		})
	}
}

func TestWalk_SkipsManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walk.zip")
	b, err := Pack(path, testManifest(), testFiles())
	require.NoError(t, err)

	var names []string
	err = b.Walk(func(name string, _ io.Reader) error {
		names = append(names, name)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"skills/lint/SKILL.md", "skills/format/SKILL.md"}, names)
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "sha256:0123456789ab...", ShortHash("sha256:0123456789abcdef0123"))
	assert.Equal(t, "sha256:abc", ShortHash("sha256:abc"))
	assert.Equal(t, "0123456789ab...", ShortHash("0123456789abcdef"))
}

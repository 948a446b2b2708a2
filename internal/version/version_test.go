package version

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/astrodata/apod-pipeline/internal/models"
)

// fakeRunner scripts command outcomes and records every invocation.
type fakeRunner struct {
	calls   [][]string
	respond func(name string, args []string) (string, string, error)
}

func (f *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, string, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.respond != nil {
		return f.respond(name, args)
	}
	return "", "", nil
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "apod_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSimulated_ChecksumMatchesDirectHash(t *testing.T) {
	content := "date,title\n2024-01-01,Test\n"
	path := writeArtifact(t, content)

	manifest, err := NewSimulatedVersioner().Version(context.Background(), path)

	require.NoError(t, err)
	sum := md5.Sum([]byte(content))
	assert.Equal(t, hex.EncodeToString(sum[:]), manifest.Checksum)
	assert.Equal(t, models.ProducedBySimulated, manifest.ProducedBy)
	assert.Equal(t, int64(len(content)), manifest.SizeBytes)
}

func TestSimulated_Deterministic(t *testing.T) {
	path := writeArtifact(t, "stable content")
	v := NewSimulatedVersioner()

	first, err := v.Version(context.Background(), path)
	require.NoError(t, err)
	second, err := v.Version(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, first.Checksum, second.Checksum)
}

func TestSimulated_ChecksumChangesWithContent(t *testing.T) {
	path := writeArtifact(t, "before")
	v := NewSimulatedVersioner()

	first, err := v.Version(context.Background(), path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("after"), 0o644))
	second, err := v.Version(context.Background(), path)
	require.NoError(t, err)

	assert.NotEqual(t, first.Checksum, second.Checksum)
}

func TestSimulated_WritesToolCompatibleManifest(t *testing.T) {
	path := writeArtifact(t, "content")

	manifest, err := NewSimulatedVersioner().Version(context.Background(), path)
	require.NoError(t, err)

	data, err := os.ReadFile(path + ManifestExt)
	require.NoError(t, err)

	var mf manifestFile
	require.NoError(t, yaml.Unmarshal(data, &mf))
	require.Len(t, mf.Outs, 1)
	assert.Equal(t, manifest.Checksum, mf.Outs[0].MD5)
	assert.Equal(t, "apod_data.csv", mf.Outs[0].Path)
}

func TestSimulated_UnreadableArtifact(t *testing.T) {
	v := NewSimulatedVersioner()

	_, err := v.Version(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))

	var verr *VersioningError
	assert.ErrorAs(t, err, &verr)
}

func TestDetect_SelectsSimulatedWhenToolMissing(t *testing.T) {
	runner := &fakeRunner{respond: func(string, []string) (string, string, error) {
		return "", "dvc: command not found", errors.New("exec: not found")
	}}

	v := Detect(context.Background(), runner)

	assert.Equal(t, "simulated", v.Name())
}

func TestDetect_SelectsRealToolWhenProbeSucceeds(t *testing.T) {
	runner := &fakeRunner{}

	v := Detect(context.Background(), runner)

	assert.Equal(t, "dvc", v.Name())
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"dvc", "version"}, runner.calls[0])
}

func TestDVC_FallsBackWhenToolFails(t *testing.T) {
	path := writeArtifact(t, "content")
	runner := &fakeRunner{respond: func(string, []string) (string, string, error) {
		return "", "boom", errors.New("exit status 1")
	}}

	manifest, err := NewDVCVersioner(runner).Version(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, models.ProducedBySimulated, manifest.ProducedBy)

	sum := md5.Sum([]byte("content"))
	assert.Equal(t, hex.EncodeToString(sum[:]), manifest.Checksum)
}

func TestDVC_ParsesToolManifest(t *testing.T) {
	path := writeArtifact(t, "content")
	runner := &fakeRunner{respond: func(name string, args []string) (string, string, error) {
		// Emulate `dvc add` writing its metadata file next to the artifact.
		mf := manifestFile{Outs: []manifestOut{{MD5: "abc123", Size: 7, Hash: "md5", Path: "apod_data.csv"}}}
		out, _ := yaml.Marshal(mf)
		os.WriteFile(path+ManifestExt, out, 0o644)
		return "", "", nil
	}}

	manifest, err := NewDVCVersioner(runner).Version(context.Background(), path)

	require.NoError(t, err)
	assert.Equal(t, models.ProducedByRealTool, manifest.ProducedBy)
	assert.Equal(t, "abc123", manifest.Checksum)
	assert.Equal(t, int64(7), manifest.SizeBytes)
}

func TestDVC_UnreadableArtifact(t *testing.T) {
	runner := &fakeRunner{}

	_, err := NewDVCVersioner(runner).Version(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))

	var verr *VersioningError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, runner.calls, "tool must not run against an unreadable artifact")
}

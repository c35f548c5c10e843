package localfs

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmcache/component-cache/internal/component"
)

func writeComponent(t *testing.T, dir string, id component.Id, version component.Version, sidecarJSON string) {
	t.Helper()
	base := fmt.Sprintf("%s-%d", id, version)
	require.NoError(t, os.WriteFile(filepath.Join(dir, base+".wasm"), []byte("fake-wasm-bytes"), 0o644))
	if sidecarJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, base+".json"), []byte(sidecarJSON), 0o644))
	}
}

func TestResolve_PicksHighestVersionByDefault(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")
	writeComponent(t, dir, id, 3, "")
	writeComponent(t, dir, id, 2, "")

	f := NewFetcher(dir)
	v, err := f.Resolve(id, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, v)
}

func TestResolve_ForcedVersion(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")
	writeComponent(t, dir, id, 2, "")

	f := NewFetcher(dir)
	forced := component.Version(1)
	v, err := f.Resolve(id, &forced)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestResolve_ForcedVersionAbsentFails(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")

	f := NewFetcher(dir)
	forced := component.Version(9)
	_, err := f.Resolve(id, &forced)
	assert.Error(t, err)
	var target *component.GetLatestVersionOfComponentFailed
	assert.ErrorAs(t, err, &target)
}

func TestResolve_NoCandidatesFails(t *testing.T) {
	dir := t.TempDir()
	f := NewFetcher(dir)
	_, err := f.Resolve(component.Id(uuid.New()), nil)
	assert.Error(t, err)
}

func TestResolve_MismatchedFilesAreSilentlyDiscarded(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.String()+"-notanumber.wasm"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, id.String()+"-2.txt"), []byte("x"), 0o644))

	f := NewFetcher(dir)
	v, err := f.Resolve(id, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestReadMetadata_HappyPath(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, `{"componentType":"Durable","files":[{"key":"cfg","path":"/etc/cfg.json","permissions":"ReadOnly"}]}`)

	f := NewFetcher(dir)
	md, err := f.ReadMetadata(id, 1)
	require.NoError(t, err)
	assert.Equal(t, component.Durable, md.Type)
	require.Len(t, md.Files, 1)
	assert.Equal(t, "/etc/cfg.json", md.Files[0].Path)
	assert.EqualValues(t, len("fake-wasm-bytes"), md.SizeBytes)
}

func TestReadMetadata_MissingSidecarFails(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")

	f := NewFetcher(dir)
	_, err := f.ReadMetadata(id, 1)
	assert.Error(t, err)
}

func TestReadMetadata_MalformedSidecarFails(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, `{not json`)

	f := NewFetcher(dir)
	_, err := f.ReadMetadata(id, 1)
	assert.Error(t, err)
}

func TestReadMetadata_BadPathGrammarFails(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, `{"componentType":"Durable","files":[{"key":"cfg","path":"etc/cfg.json","permissions":"ReadOnly"}]}`)

	f := NewFetcher(dir)
	_, err := f.ReadMetadata(id, 1)
	assert.Error(t, err)
}

func TestReadBytes_HappyPath(t *testing.T) {
	dir := t.TempDir()
	id := component.Id(uuid.New())
	writeComponent(t, dir, id, 1, "")

	f := NewFetcher(dir)
	data, err := f.ReadBytes(id, 1)
	require.NoError(t, err)
	assert.Equal(t, "fake-wasm-bytes", string(data))
}

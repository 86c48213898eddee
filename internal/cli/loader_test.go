package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSpec(t *testing.T) {
	path := writeSpec(t, `
name: deploy
units:
  - name: fetch
    action: "git fetch"
  - name: build
    action: "make build"
    dependencies: [fetch]
    parallel: true
`)

	spec, err := LoadSpec(path)
	require.NoError(t, err)

	assert.Equal(t, "deploy", spec.Name)
	require.Len(t, spec.Units, 2)
	assert.Equal(t, "fetch", spec.Units[0].Name)
	assert.Equal(t, "git fetch", spec.Units[0].Action)
	assert.False(t, spec.Units[0].Parallel)
	assert.Equal(t, []string{"fetch"}, spec.Units[1].Dependencies)
	assert.True(t, spec.Units[1].Parallel)
}

func TestLoadSpec_NormalizesToNFC(t *testing.T) {
	// "é" written as 'e' + combining acute (NFD). The loader must
	// normalize both the declaration and the reference so they match.
	path := writeSpec(t, `
name: accents
units:
  - name: "déploy"
    action: "true"
  - name: verify
    action: "true"
    dependencies: ["déploy"]
`)

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, "déploy", spec.Units[0].Name)
	assert.Equal(t, "déploy", spec.Units[1].Dependencies[0])
}

func TestLoadSpec_UnknownDependency(t *testing.T) {
	path := writeSpec(t, `
name: typo
units:
  - name: build
    action: "make"
    dependencies: [fetchh]
`)

	_, err := LoadSpec(path)
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeInvalidSpec, loadErr.Code)
	assert.Contains(t, loadErr.Message, `unknown unit "fetchh"`)
}

func TestLoadSpec_AllowDangling(t *testing.T) {
	path := writeSpec(t, `
name: dangling
allow_dangling: true
units:
  - name: build
    action: "make"
    dependencies: [fetchh]
`)

	spec, err := LoadSpec(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fetchh"}, spec.Units[0].Dependencies)
}

func TestLoadSpec_FileNotFound(t *testing.T) {
	_, err := LoadSpec(filepath.Join(t.TempDir(), "missing.yaml"))
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}

func TestLoadSpec_MalformedYAML(t *testing.T) {
	path := writeSpec(t, "units: [unclosed")

	_, err := LoadSpec(path)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeParse, loadErr.Code)
}

func TestLoadSpec_InvalidSpec(t *testing.T) {
	path := writeSpec(t, `
name: broken
units:
  - name: build
    action: ""
`)

	_, err := LoadSpec(path)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeInvalidSpec, loadErr.Code)
}

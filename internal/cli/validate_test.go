package cli

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func execRoot(t *testing.T, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	t.Helper()
	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	return stdout, stderr, cmd.Execute()
}

const validSpecYAML = `
name: deploy
units:
  - name: fetch
    action: "git fetch"
  - name: build
    action: "make build"
    dependencies: [fetch]
  - name: test
    action: "make test"
    dependencies: [build]
`

const cycleSpecYAML = `
name: tangled
units:
  - name: a
    action: "true"
    dependencies: [b]
  - name: b
    action: "true"
    dependencies: [a]
  - name: seed
    action: "true"
`

func TestValidateCommand_ValidSpec(t *testing.T) {
	path := writeSpec(t, validSpecYAML)

	stdout, _, err := execRoot(t, "validate", path)
	require.NoError(t, err)

	newGoldie(t).Assert(t, "validate_valid", stdout.Bytes())
}

func TestValidateCommand_Cycle(t *testing.T) {
	path := writeSpec(t, cycleSpecYAML)

	stdout, _, err := execRoot(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	newGoldie(t).Assert(t, "validate_cycle", stdout.Bytes())
}

func TestValidateCommand_ValidSpecJSON(t *testing.T) {
	path := writeSpec(t, validSpecYAML)

	stdout, _, err := execRoot(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	newGoldie(t).Assert(t, "validate_valid_json", stdout.Bytes())
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, _, err := execRoot(t, "validate", "no-such-spec.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateCommand_InvalidSpecFile(t *testing.T) {
	path := writeSpec(t, `
name: broken
units:
  - name: build
    action: ""
`)

	stdout, _, err := execRoot(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout.String(), "Error [E003]")
}

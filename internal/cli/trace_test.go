package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhale/cascade/internal/engine"
	"github.com/rhale/cascade/internal/trace"
)

func seedTraceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.db")

	store, err := trace.Open(path)
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	transitions := []engine.Transition{
		{GraphID: "g-1", Status: "running", Seq: 1, At: at},
		{GraphID: "g-1", UnitID: "g-1-u1", Status: "running", Seq: 2, At: at.Add(time.Second)},
		{GraphID: "g-1", UnitID: "g-1-u1", Status: "failed", Detail: "exit status 1", Seq: 3, At: at.Add(2 * time.Second)},
		{GraphID: "g-1", Status: "failed", Seq: 4, At: at.Add(2 * time.Second)},
		{GraphID: "g-2", Status: "running", Seq: 1, At: at.Add(time.Minute)},
	}
	for _, tr := range transitions {
		require.NoError(t, store.RecordTransition(context.Background(), tr))
	}
	return path
}

func TestTraceCommand_ListsGraphs(t *testing.T) {
	path := seedTraceDB(t)

	stdout, _, err := execRoot(t, "trace", path)
	require.NoError(t, err)
	assert.Equal(t, "g-2\ng-1\n", stdout.String())
}

func TestTraceCommand_ShowsTransitions(t *testing.T) {
	path := seedTraceDB(t)

	stdout, _, err := execRoot(t, "trace", path, "g-1")
	require.NoError(t, err)

	out := stdout.String()
	assert.Contains(t, out, "   1  2026-03-01T12:00:00Z  g-1          running")
	assert.Contains(t, out, "   3  2026-03-01T12:00:02Z  g-1-u1       failed  (exit status 1)")
	assert.NotContains(t, out, "g-2")
}

func TestTraceCommand_UnknownGraph(t *testing.T) {
	path := seedTraceDB(t)

	stdout, _, err := execRoot(t, "trace", path, "g-404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout.String(), "no transitions recorded")
}

func TestTraceCommand_MissingDatabase(t *testing.T) {
	_, _, err := execRoot(t, "trace", filepath.Join(t.TempDir(), "nope.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/host"
)

// recordRun runs entry with a fixed run ID and records it in db.
func recordRun(t *testing.T, db, entry, runID string) error {
	t.Helper()
	cmd := newRunCommand(&RunOptions{
		HostOptions: HostOptions{RootOptions: &RootOptions{Format: "text"}},
		RunIDs:      host.NewFixedGenerator(runID),
	})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{entry, "--trace-db", db})
	return cmd.Execute()
}

func TestTraceCommand_ListAndShow(t *testing.T) {
	dir := writeModules(t, map[string]string{
		"main.yaml": "imports:\n  - from: ./lib.yaml\nbody:\n  - microtask: m1\n  - log: done\nexports:\n  default: 5\n",
		"lib.yaml":  "exports:\n  x: 1\n",
		"bad.yaml":  "body:\n  - throw: boom\n",
	})
	db := filepath.Join(dir, "runs.db")

	require.NoError(t, recordRun(t, db, filepath.Join(dir, "main.yaml"), "run-ok"))
	require.Error(t, recordRun(t, db, filepath.Join(dir, "bad.yaml"), "run-bad"))

	out, _, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-ok")
	assert.Contains(t, out, "run-bad")
	assert.Contains(t, out, "EVALUATION_ERROR")

	out, _, err = execute(t, "trace", "--db", db, "run-ok")
	require.NoError(t, err)
	assert.Contains(t, out, "Trace for Run: run-ok")
	assert.Contains(t, out, "Status: ok")
	assert.Contains(t, out, "evaluated")
	assert.Contains(t, out, "microtask")
	assert.NotContains(t, out, "loop_state")

	out, _, err = execute(t, "trace", "--db", db, "run-bad")
	require.NoError(t, err)
	assert.Contains(t, out, "failed: EVALUATION_ERROR in file://")
}

func TestTraceCommand_JSONWithKindFilter(t *testing.T) {
	dir := writeModules(t, map[string]string{
		"main.yaml": "body:\n  - log: one\n  - log: two\nexports:\n  default: [1, 2]\n",
	})
	db := filepath.Join(dir, "runs.db")
	require.NoError(t, recordRun(t, db, filepath.Join(dir, "main.yaml"), "run-1"))

	out, _, err := execute(t, "trace", "--db", db, "run-1", "--kind", "step", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.NewDecoder(bytes.NewReader([]byte(out))).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-1", resp.Data.Run.ID)
	assert.Equal(t, []any{float64(1), float64(2)}, resp.Data.Run.Value)
	require.Len(t, resp.Data.Timeline, 2)
	for _, ev := range resp.Data.Timeline {
		assert.Equal(t, "step", string(ev.Kind))
	}
	assert.Equal(t, "one", resp.Data.Timeline[0].Detail)
	assert.Equal(t, 1, resp.Data.Stats.Modules)
}

func TestTraceCommand_UnknownRun(t *testing.T) {
	dir := writeModules(t, map[string]string{"main.yaml": "{}\n"})
	db := filepath.Join(dir, "runs.db")
	require.NoError(t, recordRun(t, db, filepath.Join(dir, "main.yaml"), "run-1"))

	_, _, err := execute(t, "trace", "--db", db, "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: nope")
}

func TestTraceCommand_MissingDatabase(t *testing.T) {
	_, _, err := execute(t, "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceCommand_RequiresDB(t *testing.T) {
	_, _, err := execute(t, "trace")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/trace"
)

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario failed:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestMicrotaskOrderGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/microtask_order.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_PersistsTraceThroughStore(t *testing.T) {
	scenario := mustParse(t, `
name: persisted
entry: /main.yaml
modules:
  /main.yaml: |
    body:
      - log: hi
    exports:
      default: 7
expect:
  value: 7
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, strings.Join(result.Errors, "\n"))

	assert.Equal(t, "test-run-default", result.RunID)
	require.NotEmpty(t, result.Trace)
	for i := 1; i < len(result.Trace); i++ {
		assert.Less(t, result.Trace[i-1].Seq, result.Trace[i].Seq, "trace must come back in seq order")
	}
	assert.Contains(t, names(result.Trace, trace.KindStep), "log")
}

func TestRun_CustomRunID(t *testing.T) {
	scenario := mustParse(t, `
name: custom_id
run_id: scenario-42
entry: /main.yaml
modules:
  /main.yaml: "{}"
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "scenario-42", result.RunID)
}

func TestRun_ValueMismatchFails(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_value
entry: /main.yaml
modules:
  /main.yaml: |
    exports:
      default: 1
expect:
  value: 2
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected value 2, got 1")
}

func TestRun_UnexpectedErrorFails(t *testing.T) {
	scenario := mustParse(t, `
name: unexpected
entry: /main.yaml
modules:
  /main.yaml: |
    body:
      - throw: nope
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "EVALUATION_ERROR", result.ErrorCode)
	assert.Equal(t, "mem:///main.yaml", result.ErrorSpecifier)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "unexpected error EVALUATION_ERROR")
}

func TestRun_ExpectedErrorButSucceeded(t *testing.T) {
	scenario := mustParse(t, `
name: should_fail
entry: /main.yaml
modules:
  /main.yaml: |
    exports:
      default: fine
expect:
  error: EVALUATION_ERROR
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "run succeeded with fine")
}

func TestRun_WrongFailureSpecifier(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_specifier
entry: /main.yaml
modules:
  /main.yaml: |
    imports:
      - from: ./gone.yaml
expect:
  error: GRAPH_ERROR
  specifier: /main.yaml
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected failure in mem:///main.yaml, got mem:///gone.yaml")
}

func TestRun_RealTimeTimeout(t *testing.T) {
	scenario := mustParse(t, `
name: real_timeout
entry: /main.yaml
real_time: true
timeout: 20ms
modules:
  /main.yaml: |
    body:
      - await: {timeout: 10s}
expect:
  error: CANCELLED
`)
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, strings.Join(result.Errors, "\n"))
}

func TestRun_BadModuleRef(t *testing.T) {
	scenario := mustParse(t, `
name: bad_ref
entry: /main.yaml
modules:
  "::not a url": "{}"
`)
	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module ::not a url")
}

func TestModuleRef(t *testing.T) {
	assert.Equal(t, "mem:///a.yaml", moduleRef("/a.yaml"))
	assert.Equal(t, "mem:///a.yaml", moduleRef("mem:///a.yaml"))
	assert.Equal(t, "https://x.test/a.yaml", moduleRef("https://x.test/a.yaml"))
}

func TestScenarioFilesAreLoadable(t *testing.T) {
	entries, err := os.ReadDir("testdata/scenarios")
	require.NoError(t, err)
	for _, e := range entries {
		_, err := LoadScenario(filepath.Join("testdata/scenarios", e.Name()))
		assert.NoError(t, err, e.Name())
	}
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(strings.TrimLeft(doc, "\n")))
	require.NoError(t, err)
	return s
}

func names(events []trace.Event, kind trace.Kind) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev.Name)
		}
	}
	return out
}

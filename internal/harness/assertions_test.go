package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/modhost/internal/trace"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []trace.Event{
		{Seq: 1, Kind: trace.KindModuleState, Name: "fetching", Specifier: "mem:///main.yaml"},
		{Seq: 2, Kind: trace.KindLoopState, Name: "draining"},
		{Seq: 3, Kind: trace.KindMicrotask, Name: "evaluate", Specifier: "mem:///main.yaml"},
		{Seq: 4, Kind: trace.KindStep, Name: "log", Specifier: "mem:///main.yaml", Detail: "one"},
		{Seq: 5, Kind: trace.KindStep, Name: "log", Specifier: "mem:///util.yaml", Detail: "two"},
		{Seq: 6, Kind: trace.KindMacrotask, Name: "t1", Specifier: "mem:///main.yaml"},
	}
	r.evaluations = func(ref string) int {
		switch ref {
		case "/main.yaml":
			return 1
		case "/twice.yaml":
			return 2
		default:
			return 0
		}
	}
	return r
}

func TestEvaluateAssertions_Pass(t *testing.T) {
	r := sampleResult()
	errs := EvaluateAssertions(r, []Assertion{
		{Type: AssertOrder, Names: []string{"fetching", "evaluate", "t1"}},
		{Type: AssertOrder, Kind: trace.KindStep, Names: []string{"log", "log"}},
		{Type: AssertContains, Kind: trace.KindStep, Name: "log", Detail: "two", Module: "/util.yaml"},
		{Type: AssertCount, Kind: trace.KindStep, Name: "log", Count: 2},
		{Type: AssertCount, Name: "missing", Count: 0},
		{Type: AssertEvaluatedOnce, Modules: []string{"/main.yaml"}},
		{Type: AssertNotEvaluated, Modules: []string{"/other.yaml"}},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_OrderFailure(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertOrder, Names: []string{"t1", "evaluate"}},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "assertion[0]")
	assert.Contains(t, errs[0], `stopped at "evaluate"`)
	assert.NotContains(t, errs[0], "draining", "loop states are left out of the printed trace")
}

func TestEvaluateAssertions_KindlessSkipsLoopState(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertOrder, Names: []string{"fetching", "draining"}},
		{Type: AssertContains, Name: "draining"},
		{Type: AssertOrder, Kind: trace.KindLoopState, Names: []string{"draining"}},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "assertion[0]")
	assert.Contains(t, errs[1], "assertion[1]")
}

func TestEvaluateAssertions_ContainsFailure(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertContains, Kind: trace.KindStep, Name: "log", Module: "/nowhere.yaml"},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `step event "log" in mem:///nowhere.yaml`)
	assert.Contains(t, errs[0], "not found in trace")
}

func TestEvaluateAssertions_CountFailure(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertCount, Kind: trace.KindStep, Name: "log", Detail: "one", Count: 3},
	})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "3 x step event")
	assert.Contains(t, errs[0], "1 occurrences")
}

func TestEvaluateAssertions_EvaluationCounts(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertEvaluatedOnce, Modules: []string{"/main.yaml", "/twice.yaml"}},
		{Type: AssertNotEvaluated, Modules: []string{"/main.yaml"}},
	})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "mem:///twice.yaml evaluated 2 times")
	assert.Contains(t, errs[1], "mem:///main.yaml evaluated 1 times")
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertContains,
		Expected: "x",
		Actual:   "y",
		Trace: []trace.Event{
			{Seq: 7, Kind: trace.KindStep, Name: "log", Specifier: "mem:///a.yaml", Detail: "hi"},
		},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: contains")
	assert.Contains(t, msg, "Expected: x")
	assert.Contains(t, msg, "Actual: y")
	assert.Contains(t, msg, "[7] step log mem:///a.yaml (hi)")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("broken")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"broken"}, r.Errors)
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/modhost/internal/trace"
	"github.com/roach88/modhost/internal/value"
)

// TraceSnapshot is the golden form of a scenario run. Loop state
// transitions are left out; every other event is kept with its seq.
type TraceSnapshot struct {
	ScenarioName string
	RunID        string
	Value        value.Value
	ErrorCode    string
	ErrorModule  string
	Trace        []trace.Event
}

// Snapshot builds the golden form of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		RunID:        result.RunID,
		Value:        result.Value,
		ErrorCode:    result.ErrorCode,
		ErrorModule:  result.ErrorSpecifier,
		Trace:        result.Trace,
	}
}

// toCanonicalMap converts the snapshot for value.MarshalCanonical, which
// only handles value types and plain maps and slices.
func (s TraceSnapshot) toCanonicalMap() map[string]any {
	events := make([]any, 0, len(s.Trace))
	for _, ev := range s.Trace {
		if ev.Kind == trace.KindLoopState {
			continue
		}
		m := map[string]any{
			"seq":  ev.Seq,
			"kind": string(ev.Kind),
			"name": ev.Name,
		}
		if ev.Specifier != "" {
			m["specifier"] = ev.Specifier
		}
		if ev.Detail != "" {
			m["detail"] = ev.Detail
		}
		events = append(events, m)
	}

	out := map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        s.RunID,
		"trace":         events,
	}
	if s.ErrorCode != "" {
		out["error"] = map[string]any{"code": s.ErrorCode, "specifier": s.ErrorModule}
	} else if s.Value != nil {
		out["value"] = s.Value
	}
	return out
}

// MarshalCanonical renders the snapshot as canonical JSON.
func (s TraceSnapshot) MarshalCanonical() ([]byte, error) {
	return value.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := Snapshot(name, result)
	data, err := snapshot.MarshalCanonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

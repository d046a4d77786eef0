package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/modhost/internal/host"
	"github.com/roach88/modhost/internal/loader"
	"github.com/roach88/modhost/internal/modscript"
	"github.com/roach88/modhost/internal/specifier"
	"github.com/roach88/modhost/internal/store"
	"github.com/roach88/modhost/internal/testutil"
	"github.com/roach88/modhost/internal/value"
)

// Run executes a scenario and returns the result. Expectation and
// assertion failures are reported in the result; the error is reserved
// for scenarios that cannot be executed at all.
//
// Each scenario runs in a fresh in-memory database for isolation.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ld := loader.NewMemoryLoader()
	for ref, text := range scenario.Modules {
		if _, err := ld.Add(ref, text); err != nil {
			return nil, fmt.Errorf("module %s: %w", ref, err)
		}
	}
	for _, ref := range scenario.Deny {
		if err := ld.Deny(ref); err != nil {
			return nil, fmt.Errorf("deny %s: %w", ref, err)
		}
	}
	eng := modscript.New()

	opts := []host.Option{
		host.WithLogger(testutil.DiscardLogger()),
		host.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
	}
	if !scenario.RealTime {
		opts = append(opts, host.WithTimeSource(testutil.VirtualTime()))
	}
	if scenario.Timeout != "" {
		d, err := time.ParseDuration(scenario.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		opts = append(opts, host.WithTimeout(d))
	}

	res, runErr := host.Run(ctx, moduleRef(scenario.Entry), ld, eng, opts...)
	if err := res.Save(ctx, st, runErr); err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}

	result := NewResult()
	result.RunID = res.RunID
	result.Trace, err = st.ReadEvents(ctx, res.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	result.evaluations = func(ref string) int {
		s, err := specifier.Parse(moduleRef(ref))
		if err != nil {
			return -1
		}
		return eng.EvaluationsOf(s)
	}

	if runErr != nil {
		result.ErrorCode = string(host.CodeOf(runErr))
		result.ErrorSpecifier = host.SpecifierOf(runErr)
	} else {
		result.Value = res.Value
	}

	checkExpectation(scenario.Expect, result, runErr)
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func checkExpectation(want Expectation, result *Result, runErr error) {
	if want.Error != "" {
		if runErr == nil {
			result.AddError(fmt.Sprintf("expected error %s, run succeeded with %s", want.Error, value.Text(result.Value)))
			return
		}
		if result.ErrorCode != want.Error {
			result.AddError(fmt.Sprintf("expected error %s, got %s: %v", want.Error, result.ErrorCode, runErr))
		}
		if want.Specifier != "" && result.ErrorSpecifier != moduleRef(want.Specifier) {
			result.AddError(fmt.Sprintf("expected failure in %s, got %s", moduleRef(want.Specifier), result.ErrorSpecifier))
		}
		return
	}

	if runErr != nil {
		result.AddError(fmt.Sprintf("unexpected error %s: %v", result.ErrorCode, runErr))
		return
	}
	if want.Value == nil {
		return
	}

	expected, err := value.From(want.Value)
	if err != nil {
		result.AddError(fmt.Sprintf("expect.value: %v", err))
		return
	}
	wantJSON, err := value.MarshalCanonical(expected)
	if err != nil {
		result.AddError(fmt.Sprintf("expect.value: %v", err))
		return
	}
	gotJSON, err := value.MarshalCanonical(result.Value)
	if err != nil {
		result.AddError(fmt.Sprintf("settled value: %v", err))
		return
	}
	if string(wantJSON) != string(gotJSON) {
		result.AddError(fmt.Sprintf("expected value %s, got %s", wantJSON, gotJSON))
	}
}

// moduleRef turns a scenario path ("/main.yaml") into a mem: URL and leaves
// anything else untouched.
func moduleRef(ref string) string {
	if strings.HasPrefix(ref, "/") {
		return "mem://" + ref
	}
	return ref
}

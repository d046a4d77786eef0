package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/modhost/internal/trace"
)

// AssertionError is returned when an assertion fails. It carries the
// trace so a failure can be debugged from the message alone.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []trace.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		if ev.Kind == trace.KindLoopState {
			continue
		}
		fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Kind, ev.Name)
		if ev.Specifier != "" {
			fmt.Fprintf(&buf, " %s", ev.Specifier)
		}
		if ev.Detail != "" {
			fmt.Fprintf(&buf, " (%s)", ev.Detail)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns one message per
// failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertOrder:
		return assertOrder(result.Trace, a)
	case AssertContains:
		return assertContains(result.Trace, a)
	case AssertCount:
		return assertCount(result.Trace, a)
	case AssertEvaluatedOnce:
		return assertEvaluations(result, a, 1)
	case AssertNotEvaluated:
		return assertEvaluations(result, a, 0)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertOrder checks that Names occur, in order, among events of Kind.
// Intervening events are allowed.
func assertOrder(events []trace.Event, a Assertion) error {
	var seen []string
	next := 0
	for _, ev := range events {
		if !kindMatches(ev, a.Kind) {
			continue
		}
		seen = append(seen, ev.Name)
		if next < len(a.Names) && ev.Name == a.Names[next] {
			next++
		}
	}
	if next == len(a.Names) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOrder,
		Expected: fmt.Sprintf("%s events in order %v", kindLabel(a.Kind), a.Names),
		Actual:   fmt.Sprintf("%v (stopped at %q)", seen, a.Names[next]),
		Trace:    events,
	}
}

func assertContains(events []trace.Event, a Assertion) error {
	if countMatches(events, a) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertContains,
		Expected: describe(a),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

func assertCount(events []trace.Event, a Assertion) error {
	n := countMatches(events, a)
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertCount,
		Expected: fmt.Sprintf("%d x %s", a.Count, describe(a)),
		Actual:   fmt.Sprintf("%d occurrences", n),
		Trace:    events,
	}
}

func assertEvaluations(result *Result, a Assertion, want int) error {
	var wrong []string
	for _, m := range a.Modules {
		if n := result.evaluations(m); n != want {
			wrong = append(wrong, fmt.Sprintf("%s evaluated %d times", moduleRef(m), n))
		}
	}
	if len(wrong) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("each of %v evaluated %d times", a.Modules, want),
		Actual:   strings.Join(wrong, ", "),
		Trace:    result.Trace,
	}
}

func countMatches(events []trace.Event, a Assertion) int {
	n := 0
	for _, ev := range events {
		if matches(ev, a) {
			n++
		}
	}
	return n
}

func matches(ev trace.Event, a Assertion) bool {
	if !kindMatches(ev, a.Kind) {
		return false
	}
	if ev.Name != a.Name {
		return false
	}
	if a.Detail != "" && ev.Detail != a.Detail {
		return false
	}
	if a.Module != "" && ev.Specifier != moduleRef(a.Module) {
		return false
	}
	return true
}

// kindMatches reports whether ev is of kind k. An empty k matches every
// kind except loop_state, whose names would collide with task names.
func kindMatches(ev trace.Event, k trace.Kind) bool {
	if k == "" {
		return ev.Kind != trace.KindLoopState
	}
	return ev.Kind == k
}

func describe(a Assertion) string {
	s := fmt.Sprintf("%s event %q", kindLabel(a.Kind), a.Name)
	if a.Detail != "" {
		s += fmt.Sprintf(" with detail %q", a.Detail)
	}
	if a.Module != "" {
		s += " in " + moduleRef(a.Module)
	}
	return s
}

func kindLabel(k trace.Kind) string {
	if k == "" {
		return "any"
	}
	return string(k)
}

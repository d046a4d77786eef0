package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/modhost/internal/trace"
)

// Scenario defines one conformance scenario: a set of in-memory modules,
// an entry, the expected outcome, and assertions on the trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entry is the entry module, as a path ("/main.yaml") or mem: URL.
	Entry string `yaml:"entry"`

	// Modules maps module paths to source text.
	Modules map[string]string `yaml:"modules"`

	// Deny lists modules that exist but fail with permission denied.
	Deny []string `yaml:"deny,omitempty"`

	// Timeout bounds the run ("50ms"). Runs use virtual time, so only
	// timers count toward it when a real time source is selected.
	Timeout string `yaml:"timeout,omitempty"`

	// RealTime runs the loop on the system clock instead of virtual time.
	RealTime bool `yaml:"real_time,omitempty"`

	// RunID fixes the run ID (default testutil.DefaultRunID).
	RunID string `yaml:"run_id,omitempty"`

	Expect Expectation `yaml:"expect"`

	Assertions []Assertion `yaml:"assertions"`
}

// Expectation is the expected outcome of the run.
type Expectation struct {
	// Value is compared with the settled entry value after conversion to
	// the host value model.
	Value any `yaml:"value,omitempty"`

	// Error is the expected error code (for example EVALUATION_ERROR).
	Error string `yaml:"error,omitempty"`

	// Specifier is the module the failure must be attributed to.
	Specifier string `yaml:"specifier,omitempty"`
}

// Assertion validates the trace or module evaluation counts.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind selects events by trace kind (order, contains, count).
	Kind trace.Kind `yaml:"kind,omitempty"`

	// Name and Detail match event fields (contains, count).
	Name   string `yaml:"name,omitempty"`
	Detail string `yaml:"detail,omitempty"`

	// Module restricts matches to events of one module (contains, count).
	Module string `yaml:"module,omitempty"`

	// Names is the expected relative order (order).
	Names []string `yaml:"names,omitempty"`

	// Count is the expected number of matches (count).
	Count int `yaml:"count,omitempty"`

	// Modules lists module paths (evaluated_once, not_evaluated).
	Modules []string `yaml:"modules,omitempty"`
}

// Assertion type constants.
const (
	AssertOrder         = "order"
	AssertContains      = "contains"
	AssertCount         = "count"
	AssertEvaluatedOnce = "evaluated_once"
	AssertNotEvaluated  = "not_evaluated"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if len(s.Modules) == 0 {
		return fmt.Errorf("at least one module is required")
	}
	if s.Expect.Value != nil && s.Expect.Error != "" {
		return fmt.Errorf("expect: value and error are mutually exclusive")
	}
	if s.Expect.Specifier != "" && s.Expect.Error == "" {
		return fmt.Errorf("expect: specifier requires error")
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, i); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion, index int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOrder:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for order", index)
		}
	case AssertContains:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for contains", index)
		}
	case AssertCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for count", index)
		}
	case AssertEvaluatedOnce, AssertNotEvaluated:
		if len(a.Modules) == 0 {
			return fmt.Errorf("assertions[%d]: modules list is required for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

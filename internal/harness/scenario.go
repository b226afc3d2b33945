package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sourcechain/internal/action"
)

// Scenario is a sequence of actions dispatched against a fresh chain,
// followed by assertions on the trace and the resulting chain.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Setup steps run before the flow and must all succeed.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps may carry expectations on their responses.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and chain.
	Assertions []Assertion `yaml:"assertions"`
}

// Step dispatches one action.
type Step struct {
	// Invoke is the action kind: commit, get_entry, add_link or get_links.
	Invoke string `yaml:"invoke"`

	// As labels the entry committed by this step for later "$label" refs.
	As string `yaml:"as,omitempty"`

	// Args are the action arguments by name.
	Args map[string]string `yaml:"args"`

	// Expect validates the response. If nil the step is not checked.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected response.
type Expect struct {
	// Case is "ok" or "error".
	Case string `yaml:"case"`

	// Found checks a get_entry response.
	Found *bool `yaml:"found,omitempty"`

	// Content checks the content of the entry returned by get_entry.
	Content *string `yaml:"content,omitempty"`

	// Links checks a get_links response, in order. Refs are resolved.
	Links []string `yaml:"links,omitempty"`

	// Error is a substring of the expected error message.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final chain.
type Assertion struct {
	Type string `yaml:"type"`

	// Action is the action kind (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are matched as a subset against resolved action args (trace_contains).
	Args map[string]string `yaml:"args,omitempty"`

	// Actions is the expected kind order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number (trace_count, chain_length).
	Count int `yaml:"count,omitempty"`

	// Types lists entry types from genesis to head (chain_types).
	Types []string `yaml:"types,omitempty"`

	// EntryType restricts top to the newest header of that type.
	EntryType string `yaml:"entry_type,omitempty"`

	// Entry is the expected entry address or ref under the top header.
	Entry string `yaml:"entry,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertChainLength   = "chain_length"
	AssertChainTypes    = "chain_types"
	AssertTop           = "top"
	AssertVerify        = "verify"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario document.
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
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	labels := make(map[string]bool)
	check := func(section string, i int, step Step) error {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("%s[%d]: %w", section, i, err)
		}
		if step.As != "" {
			if labels[step.As] {
				return fmt.Errorf("%s[%d]: label %q is already used", section, i, step.As)
			}
			labels[step.As] = true
		}
		return nil
	}
	for i, step := range s.Setup {
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
		if err := check("setup", i, step); err != nil {
			return err
		}
	}
	for i, step := range s.Flow {
		if err := check("flow", i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch action.Kind(step.Invoke) {
	case action.KindCommit, action.KindGetEntry, action.KindAddLink, action.KindGetLinks:
	case "":
		return fmt.Errorf("invoke is required")
	default:
		return fmt.Errorf("unknown action %q", step.Invoke)
	}
	if step.Args == nil {
		return fmt.Errorf("args is required (use empty map if no args)")
	}
	if step.As != "" && action.Kind(step.Invoke) != action.KindCommit {
		return fmt.Errorf("as is only valid on commit")
	}
	if step.Expect != nil && step.Expect.Case != CaseOK && step.Expect.Case != CaseError {
		return fmt.Errorf("expect.case must be %q or %q", CaseOK, CaseError)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertChainLength:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for chain_length", index)
		}
	case AssertChainTypes, AssertVerify:
	case AssertTop:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for top", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sourcechain/internal/ir"
)

// TraceSnapshot captures a scenario execution for golden comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Head         *ir.Address  `json:"head,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// Canonical returns the snapshot as RFC 8785 canonical JSON.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.IRObject{
			"type": ir.IRString(event.Type),
			"kind": ir.IRString(event.Kind),
			"seq":  ir.IRInt(event.Seq),
		}
		if len(event.Args) > 0 {
			args := make(ir.IRObject, len(event.Args))
			for k, v := range event.Args {
				args[k] = ir.IRString(v)
			}
			obj["args"] = args
		}
		if event.Case != "" {
			obj["case"] = ir.IRString(event.Case)
		}
		if event.Result != nil {
			obj["result"] = event.Result
		}
		trace[i] = obj
	}

	snapshot := ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
	}
	if s.Head != nil {
		snapshot["head"] = ir.IRString(*s.Head)
	}
	return ir.MarshalCanonical(snapshot)
}

// RunWithGolden executes a scenario and compares its snapshot against
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
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Head:         result.Head,
		Trace:        result.Trace,
	}
	data, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}

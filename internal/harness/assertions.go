package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sourcechain/internal/chain"
	"github.com/roach88/sourcechain/internal/ir"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			if event.Type == EventAction {
				fmt.Fprintf(&buf, "  [%d] %s %v\n", i+1, event.Kind, event.Args)
			}
		}
	}

	return buf.String()
}

// AssertionContext gives chain assertions access to the scenario's chain.
type AssertionContext struct {
	Ctx   context.Context
	Chain *chain.SourceChain

	// Refs maps commit labels to entry addresses.
	Refs map[string]ir.Address
}

// resolve maps a "$label" ref to its address. Other values pass through.
func (c *AssertionContext) resolve(v string) string {
	label, ok := strings.CutPrefix(v, "$")
	if !ok || c == nil {
		return v
	}
	if addr, ok := c.Refs[label]; ok {
		return addr.String()
	}
	return v
}

// assertTraceContains checks for an action of the given kind whose args
// contain the expected args.
func assertTraceContains(trace []TraceEvent, assertion Assertion, actx *AssertionContext) error {
	for _, event := range trace {
		if event.Type == EventAction && event.Kind == assertion.Action &&
			matchArgs(event.Args, assertion.Args, actx) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("action %s with args %v", assertion.Action, assertion.Args),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that kinds first appear in the given order.
// Intervening actions are allowed.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventAction {
			continue
		}
		if _, seen := positions[event.Kind]; !seen {
			positions[event.Kind] = i + 1
		}
	}

	for _, kind := range assertion.Actions {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", assertion.Actions),
				Actual:   fmt.Sprintf("missing action: %s", kind),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Actions); i++ {
		prev, curr := assertion.Actions[i-1], assertion.Actions[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", assertion.Actions),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks that a kind is dispatched exactly Count times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == EventAction && event.Kind == assertion.Action {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertChainLength checks the number of headers from head to genesis.
func assertChainLength(actx *AssertionContext, assertion Assertion) error {
	headers, err := actx.Chain.Headers(actx.Ctx)
	if err != nil {
		return fmt.Errorf("chain_length: %w", err)
	}
	if len(headers) != assertion.Count {
		return &AssertionError{
			Type:     AssertChainLength,
			Expected: fmt.Sprintf("%d headers", assertion.Count),
			Actual:   fmt.Sprintf("%d headers", len(headers)),
		}
	}
	return nil
}

// assertChainTypes checks entry types in commit order.
func assertChainTypes(actx *AssertionContext, assertion Assertion) error {
	headers, err := actx.Chain.Headers(actx.Ctx)
	if err != nil {
		return fmt.Errorf("chain_types: %w", err)
	}
	types := make([]string, len(headers))
	for i, h := range headers {
		types[len(headers)-1-i] = h.EntryType
	}
	if !slices.Equal(types, assertion.Types) {
		return &AssertionError{
			Type:     AssertChainTypes,
			Expected: fmt.Sprintf("%v", assertion.Types),
			Actual:   fmt.Sprintf("%v", types),
		}
	}
	return nil
}

// assertTop checks the entry under the head, or under the newest header
// of EntryType when set.
func assertTop(actx *AssertionContext, assertion Assertion) error {
	var (
		top   ir.ChainHeader
		found bool
		err   error
	)
	if assertion.EntryType != "" {
		top, found, err = actx.Chain.TopHeaderOfType(actx.Ctx, assertion.EntryType)
	} else {
		top, found, err = actx.Chain.TopHeader(actx.Ctx)
	}
	if err != nil {
		return fmt.Errorf("top: %w", err)
	}

	want := ir.Address(actx.resolve(assertion.Entry))
	if !found {
		return &AssertionError{
			Type:     AssertTop,
			Expected: fmt.Sprintf("top header with entry %s", want),
			Actual:   "no matching header",
		}
	}
	if top.EntryAddress != want {
		return &AssertionError{
			Type:     AssertTop,
			Expected: fmt.Sprintf("top header with entry %s", want),
			Actual:   fmt.Sprintf("entry %s (%s)", top.EntryAddress, top.EntryType),
		}
	}
	return nil
}

// matchArgs reports whether actual contains every expected arg.
// Extra keys in actual are ignored.
func matchArgs(actual, expected map[string]string, actx *AssertionContext) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok || got != actx.resolve(want) {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// Chain assertions require actx.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, actx)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertChainLength, AssertChainTypes, AssertTop, AssertVerify:
			if actx == nil || actx.Chain == nil {
				err = fmt.Errorf("assertion[%d]: %s requires chain context", i, assertion.Type)
				break
			}
			err = evaluateChainAssertion(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func evaluateChainAssertion(actx *AssertionContext, assertion Assertion) error {
	switch assertion.Type {
	case AssertChainLength:
		return assertChainLength(actx, assertion)
	case AssertChainTypes:
		return assertChainTypes(actx, assertion)
	case AssertTop:
		return assertTop(actx, assertion)
	default:
		if err := actx.Chain.Verify(actx.Ctx); err != nil {
			return &AssertionError{Type: AssertVerify, Expected: "valid chain", Actual: err.Error()}
		}
		return nil
	}
}

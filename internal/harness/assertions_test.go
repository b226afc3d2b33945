package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/chain"
	"github.com/roach88/sourcechain/internal/ir"
	"github.com/roach88/sourcechain/internal/testutil"
)

func actionEvent(kind string, args map[string]string, seq int64) TraceEvent {
	return TraceEvent{Type: EventAction, Kind: kind, Args: args, Seq: seq}
}

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		actionEvent("commit", map[string]string{"entry_type": "post", "content": "a"}, 1),
		{Type: EventResponse, Kind: "commit", Case: CaseOK, Seq: 2},
		actionEvent("add_link", map[string]string{"base": "b1", "target": "t1", "tag": "reply"}, 3),
		{Type: EventResponse, Kind: "add_link", Case: CaseOK, Seq: 4},
		actionEvent("get_links", map[string]string{"base": "b1", "tag": "reply"}, 5),
		{Type: EventResponse, Kind: "get_links", Case: CaseOK, Seq: 6},
		actionEvent("commit", map[string]string{"entry_type": "post", "content": "b"}, 7),
		{Type: EventResponse, Kind: "commit", Case: CaseOK, Seq: 8},
	}
}

func TestAssertTraceContains(t *testing.T) {
	trace := sampleTrace()
	tests := []struct {
		name   string
		action string
		args   map[string]string
		ok     bool
	}{
		{"kind only", "add_link", nil, true},
		{"subset of args", "add_link", map[string]string{"tag": "reply"}, true},
		{"all args", "commit", map[string]string{"entry_type": "post", "content": "b"}, true},
		{"wrong value", "add_link", map[string]string{"tag": "quote"}, false},
		{"unknown key", "add_link", map[string]string{"limit": "1"}, false},
		{"missing kind", "get_entry", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(trace, Assertion{Type: AssertTraceContains, Action: tt.action, Args: tt.args}, nil)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertTraceContains, ae.Type)
		})
	}
}

func TestAssertTraceContains_ResolvesRefs(t *testing.T) {
	actx := &AssertionContext{Refs: map[string]ir.Address{"base": "b1"}}
	err := assertTraceContains(sampleTrace(), Assertion{
		Action: "add_link",
		Args:   map[string]string{"base": "$base"},
	}, actx)
	assert.NoError(t, err)
}

func TestAssertTraceOrder(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"commit", "add_link", "get_links"}}))
	assert.NoError(t, assertTraceOrder(trace, Assertion{Actions: []string{"commit", "get_links"}}), "intervening actions allowed")

	err := assertTraceOrder(trace, Assertion{Actions: []string{"get_links", "add_link"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_links (pos 5) should be before add_link (pos 3)")

	err = assertTraceOrder(trace, Assertion{Actions: []string{"commit", "get_entry"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing action: get_entry")
}

func TestAssertTraceCount(t *testing.T) {
	trace := sampleTrace()

	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "commit", Count: 2}))
	assert.NoError(t, assertTraceCount(trace, Assertion{Action: "get_entry", Count: 0}))

	err := assertTraceCount(trace, Assertion{Action: "commit", Count: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 occurrences of commit")
	assert.Contains(t, err.Error(), "Actual: 2 occurrences")
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of commit",
		Actual:   "0 occurrences",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count\n")
	assert.Contains(t, msg, "  Expected: 1 occurrences of commit\n")
	assert.Contains(t, msg, "  Actual: 0 occurrences\n")
	assert.Contains(t, msg, "Full trace:")
	assert.Contains(t, msg, "[1] commit")
	assert.NotContains(t, msg, "[2]", "responses are not listed")
}

// chainContext builds a chain holding the given (type, content) commits.
func chainContext(t *testing.T, commits ...[2]string) *AssertionContext {
	t.Helper()
	ctx := context.Background()
	store := cas.Start(cas.NewMemoryBackend())
	t.Cleanup(store.Stop)
	head, err := chain.NewHeadActor(ctx, nil, "assertions")
	require.NoError(t, err)
	t.Cleanup(head.Stop)

	sc := chain.New(store, head, chain.WithClock(testutil.NewDeterministicClock().Now))
	refs := make(map[string]ir.Address)
	for _, c := range commits {
		h, err := sc.Commit(ctx, ir.NewEntry(c[0], c[1]))
		require.NoError(t, err)
		refs[c[1]] = h.EntryAddress
	}
	return &AssertionContext{Ctx: ctx, Chain: sc, Refs: refs}
}

func TestChainAssertions(t *testing.T) {
	actx := chainContext(t, [2]string{"post", "p1"}, [2]string{"reply", "r1"}, [2]string{"post", "p2"})

	pass := []Assertion{
		{Type: AssertChainLength, Count: 3},
		{Type: AssertChainTypes, Types: []string{"post", "reply", "post"}},
		{Type: AssertTop, Entry: "$p2"},
		{Type: AssertTop, EntryType: "reply", Entry: "$r1"},
		{Type: AssertTop, Entry: ir.NewEntry("post", "p2").MustAddress().String()},
		{Type: AssertVerify},
	}
	assert.Empty(t, EvaluateAssertions(NewResult(), pass, actx))

	fail := []Assertion{
		{Type: AssertChainLength, Count: 2},
		{Type: AssertChainTypes, Types: []string{"post", "post", "reply"}},
		{Type: AssertTop, Entry: "$p1"},
	}
	errs := EvaluateAssertions(NewResult(), fail, actx)
	require.Len(t, errs, 3)
	assert.Contains(t, errs[0], "Expected: 2 headers")
	assert.Contains(t, errs[1], "[post post reply]")
	assert.Contains(t, errs[2], "(post)")
}

func TestChainAssertions_EmptyChain(t *testing.T) {
	actx := chainContext(t)

	errs := EvaluateAssertions(NewResult(), []Assertion{
		{Type: AssertChainLength, Count: 0},
		{Type: AssertVerify},
		{Type: AssertTop, Entry: "anything"},
	}, actx)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "no matching header")
}

func TestEvaluateAssertions_ChainWithoutContext(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertVerify}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "verify requires chain context")
}

func TestEvaluateAssertions_UnknownType(t *testing.T) {
	errs := EvaluateAssertions(NewResult(), []Assertion{{Type: "final_state"}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], `unknown assertion type "final_state"`)
}

func TestEvaluateAssertions_MixedResults(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceContains, Action: "commit"},
		{Type: AssertTraceCount, Action: "commit", Count: 5},
		{Type: AssertTraceOrder, Actions: []string{"commit", "add_link"}},
	}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "trace_count")
}

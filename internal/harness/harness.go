package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/chain"
	"github.com/roach88/sourcechain/internal/engine"
	"github.com/roach88/sourcechain/internal/ir"
	"github.com/roach88/sourcechain/internal/testutil"
)

// headName is the head record name used for scenario chains.
const headName = "scenario"

// Harness dispatches scenario steps through a running engine.
type Harness struct {
	engine *engine.Engine
	seq    *engine.Clock // trace event clock, one tick per action or response
	refs   map[string]ir.Address
}

// Run executes a scenario against a fresh in-memory chain.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller context. The returned error reports a
// scenario that could not be executed (bad refs, failing setup, bridge
// failures); expectation and assertion failures are in the Result.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	store := cas.Start(cas.NewMemoryBackend())
	defer store.Stop()
	head, err := chain.NewHeadActor(ctx, nil, headName)
	if err != nil {
		return nil, fmt.Errorf("failed to create head: %w", err)
	}
	defer head.Stop()

	sc := chain.New(store, head, chain.WithClock(testutil.NewDeterministicClock().Now))
	eng := engine.New(sc, engine.WithNonceGenerator(testutil.NewCountingNonceGenerator(scenario.Name)))

	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := eng.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("scenario engine stopped", "scenario", scenario.Name, "error", err)
		}
	}()
	defer func() {
		cancel()
		<-eng.Done()
	}()

	h := &Harness{
		engine: eng,
		seq:    engine.NewClock(),
		refs:   make(map[string]ir.Address),
	}

	result := NewResult()
	for i, step := range scenario.Setup {
		resp, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		if resp.Err != nil {
			return nil, fmt.Errorf("setup[%d]: %s failed: %w", i, step.Invoke, resp.Err)
		}
	}

	for i, step := range scenario.Flow {
		resp, err := h.execute(ctx, step, result)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect == nil {
			continue
		}
		for _, msg := range h.checkExpect(step, resp) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
		}
	}

	if result.Head, err = head.Get(ctx); err != nil {
		return nil, fmt.Errorf("failed to read head: %w", err)
	}

	actx := &AssertionContext{Ctx: ctx, Chain: sc, Refs: h.refs}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute resolves, dispatches and traces one step. Actions rejected by
// validation are traced as error responses.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) (action.Response, error) {
	args, err := h.resolveArgs(step.Args)
	if err != nil {
		return action.Response{}, err
	}
	a, err := buildAction(action.Kind(step.Invoke), args)
	if err != nil {
		return action.Response{}, err
	}

	result.AddActionTrace(step.Invoke, args, h.seq.Next())

	resp, err := h.engine.Dispatch(ctx, a)
	switch {
	case errors.Is(err, engine.ErrInvalidAction):
		resp = action.Response{Kind: a.Kind(), Err: err}
	case err != nil:
		return action.Response{}, err
	}

	if resp.Err != nil {
		result.AddResponseTrace(step.Invoke, CaseError, nil, h.seq.Next())
		return resp, nil
	}
	result.AddResponseTrace(step.Invoke, CaseOK, responseResult(resp), h.seq.Next())

	if step.As != "" {
		h.refs[step.As] = resp.Address
		if resp.Header != nil {
			h.refs[step.As+".header"] = resp.Header.MustAddress()
		}
	}
	return resp, nil
}

// resolveArgs replaces "$label" values with the addresses they refer to.
func (h *Harness) resolveArgs(args map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(args))
	for k, v := range args {
		r, err := h.resolve(v)
		if err != nil {
			return nil, fmt.Errorf("arg %s: %w", k, err)
		}
		resolved[k] = r
	}
	return resolved, nil
}

func (h *Harness) resolve(v string) (string, error) {
	label, ok := strings.CutPrefix(v, "$")
	if !ok {
		return v, nil
	}
	addr, ok := h.refs[label]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", v)
	}
	return addr.String(), nil
}

// argNames lists the arguments each action kind accepts.
var argNames = map[action.Kind][]string{
	action.KindCommit:   {"entry_type", "content"},
	action.KindGetEntry: {"address"},
	action.KindAddLink:  {"base", "target", "tag"},
	action.KindGetLinks: {"base", "tag"},
}

// buildAction maps named args onto an action. Missing args are left empty
// and rejected by the action's own validation at dispatch.
func buildAction(kind action.Kind, args map[string]string) (action.Action, error) {
	names, ok := argNames[kind]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", kind)
	}
	for k := range args {
		if !slices.Contains(names, k) {
			return nil, fmt.Errorf("%s: unknown argument %q", kind, k)
		}
	}

	switch kind {
	case action.KindCommit:
		return action.Commit{Entry: ir.NewEntry(args["entry_type"], args["content"])}, nil
	case action.KindGetEntry:
		return action.GetEntry{Address: ir.Address(args["address"])}, nil
	case action.KindAddLink:
		return action.AddLink{
			Base:   ir.Address(args["base"]),
			Target: ir.Address(args["target"]),
			Tag:    args["tag"],
		}, nil
	default:
		return action.GetLinks{Base: ir.Address(args["base"]), Tag: args["tag"]}, nil
	}
}

// responseResult is the traced result of a successful response.
func responseResult(resp action.Response) ir.IRObject {
	switch resp.Kind {
	case action.KindCommit:
		return ir.IRObject{
			"entry_hash":  ir.IRString(resp.Address),
			"header_hash": ir.IRString(resp.Header.MustAddress()),
		}
	case action.KindGetEntry:
		out := ir.IRObject{"found": ir.IRBool(resp.Found)}
		if resp.Entry != nil {
			out["entry"] = ir.IRObject{
				"content":    ir.IRString(resp.Entry.Content),
				"entry_type": ir.IRString(resp.Entry.EntryType),
			}
		}
		return out
	case action.KindAddLink:
		return ir.IRObject{"target": ir.IRString(resp.Address)}
	default:
		links := make(ir.IRArray, len(resp.Links))
		for i, l := range resp.Links {
			links[i] = ir.IRString(l)
		}
		return ir.IRObject{"links": links}
	}
}

// checkExpect compares a response with the step's expect clause.
func (h *Harness) checkExpect(step Step, resp action.Response) []string {
	var msgs []string
	exp := step.Expect

	got := CaseOK
	if resp.Err != nil {
		got = CaseError
	}
	if got != exp.Case {
		detail := ""
		if resp.Err != nil {
			detail = ": " + resp.Err.Error()
		}
		return []string{fmt.Sprintf("expected case %s, got %s%s", exp.Case, got, detail)}
	}

	if exp.Error != "" && (resp.Err == nil || !strings.Contains(resp.Err.Error(), exp.Error)) {
		msgs = append(msgs, fmt.Sprintf("expected error containing %q, got %v", exp.Error, resp.Err))
	}
	if exp.Found != nil && resp.Found != *exp.Found {
		msgs = append(msgs, fmt.Sprintf("expected found=%t, got %t", *exp.Found, resp.Found))
	}
	if exp.Content != nil {
		switch {
		case resp.Entry == nil:
			msgs = append(msgs, fmt.Sprintf("expected content %q, got no entry", *exp.Content))
		case resp.Entry.Content != *exp.Content:
			msgs = append(msgs, fmt.Sprintf("expected content %q, got %q", *exp.Content, resp.Entry.Content))
		}
	}
	if exp.Links != nil {
		want := make([]ir.Address, 0, len(exp.Links))
		for _, l := range exp.Links {
			r, err := h.resolve(l)
			if err != nil {
				msgs = append(msgs, err.Error())
				return msgs
			}
			want = append(want, ir.Address(r))
		}
		if !slices.Equal(want, resp.Links) {
			msgs = append(msgs, fmt.Sprintf("expected links %v, got %v", want, resp.Links))
		}
	}
	return msgs
}

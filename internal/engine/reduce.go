package engine

import (
	"context"
	"fmt"

	"github.com/roach88/sourcechain/internal/action"
)

// reduce applies one action. Chain operations block the loop for their
// actor round trips; that keeps every transition totally ordered.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) reduce(ctx context.Context, w action.Wrapper) action.Response {
	resp := action.Response{ActionID: w.ID, Kind: w.Action.Kind()}

	switch a := w.Action.(type) {
	case action.Commit:
		h, err := e.chain.Commit(ctx, a.Entry)
		if err != nil {
			return action.Failed(w, err)
		}
		resp.Address = h.EntryAddress
		resp.Header = &h

	case action.GetEntry:
		entry, found, err := e.chain.Entry(ctx, a.Address)
		if err != nil {
			return action.Failed(w, err)
		}
		resp.Found = found
		if found {
			resp.Entry = &entry
		}

	case action.AddLink:
		_, found, err := e.chain.Entry(ctx, a.Base)
		if err != nil {
			return action.Failed(w, err)
		}
		if !found {
			return action.Failed(w, fmt.Errorf("%w: %s", ErrBaseNotFound, a.Base))
		}
		e.state.addLink(a.Attribute(), a.Target)
		resp.Address = a.Target

	case action.GetLinks:
		resp.Links = e.state.Links(a.Attribute())

	default:
		return action.Failed(w, fmt.Errorf("unsupported action %T", w.Action))
	}

	return resp
}

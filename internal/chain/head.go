package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/ir"
)

// ErrHeadUnavailable is returned once the head actor has stopped.
var ErrHeadUnavailable = errors.New("chain head unavailable")

// AdvanceFunc computes the next head from the current one. It runs on the
// head actor goroutine and must not call back into the HeadActor.
type AdvanceFunc func(cur *ir.Address) (*ir.Address, error)

type headOp int

const (
	headGet headOp = iota + 1
	headSet
	headAdvance
)

type headRequest struct {
	op      headOp
	ctx     context.Context
	value   *ir.Address
	advance AdvanceFunc
	reply   chan headResult // buffered, size 1
}

type headResult struct {
	addr *ir.Address
	err  error
}

// HeadActor owns the chain head pointer. All reads and writes are
// messages processed one at a time, which makes it the linearization
// point for pushes.
//
// When constructed with a HeadStore, every change is persisted before it
// becomes visible.
type HeadActor struct {
	name  string
	store cas.HeadStore
	inbox chan headRequest
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewHeadActor loads the head named name from store (nil store means an
// in-memory head starting empty) and starts the actor goroutine.
func NewHeadActor(ctx context.Context, store cas.HeadStore, name string) (*HeadActor, error) {
	var head *ir.Address
	if store != nil {
		loaded, err := store.LoadHead(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("new head actor: %w", err)
		}
		head = loaded
	}

	h := &HeadActor{
		name:  name,
		store: store,
		inbox: make(chan headRequest),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go h.loop(head)
	return h, nil
}

func (h *HeadActor) loop(head *ir.Address) {
	defer close(h.done)
	slog.Info("head actor started", "chain", h.name, "head", headString(head))

	for {
		select {
		case <-h.quit:
			slog.Info("head actor stopped", "chain", h.name, "head", headString(head))
			return
		case req := <-h.inbox:
			var res headResult
			head, res = h.handle(head, req)
			req.reply <- res
		}
	}
}

func (h *HeadActor) handle(head *ir.Address, req headRequest) (*ir.Address, headResult) {
	switch req.op {
	case headGet:
		return head, headResult{addr: copyAddress(head)}

	case headSet:
		if err := h.persist(req.ctx, req.value); err != nil {
			return head, headResult{err: err}
		}
		return copyAddress(req.value), headResult{addr: copyAddress(head)}

	case headAdvance:
		next, err := req.advance(copyAddress(head))
		if err != nil {
			return head, headResult{err: err}
		}
		if err := h.persist(req.ctx, next); err != nil {
			// The new header is already in the store but unreachable.
			slog.Error("head update failed after header stored",
				"chain", h.name, "header", headString(next), "error", err)
			return head, headResult{err: &ConsistencyError{
				Op:      "push",
				Address: derefAddress(next),
				Message: "head update failed after header was stored",
				Err:     err,
			}}
		}
		slog.Debug("head advanced", "chain", h.name, "from", headString(head), "to", headString(next))
		return copyAddress(next), headResult{addr: copyAddress(next)}

	default:
		return head, headResult{err: fmt.Errorf("head actor: unknown op %d", req.op)}
	}
}

func (h *HeadActor) persist(ctx context.Context, addr *ir.Address) error {
	if h.store == nil {
		return nil
	}
	return h.store.StoreHead(ctx, h.name, addr)
}

func (h *HeadActor) call(ctx context.Context, req headRequest) (*ir.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req.ctx = ctx
	req.reply = make(chan headResult, 1)

	select {
	case <-h.quit:
		return nil, ErrHeadUnavailable
	default:
	}

	select {
	case h.inbox <- req:
	case <-h.quit:
		return nil, ErrHeadUnavailable
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Once accepted the request always runs to completion and is answered,
	// so the result reflects what happened to the head even if ctx ends.
	res := <-req.reply
	return res.addr, res.err
}

// Name returns the chain name the head is stored under.
func (h *HeadActor) Name() string { return h.name }

// Get returns the current head, or nil for an empty chain.
func (h *HeadActor) Get(ctx context.Context) (*ir.Address, error) {
	return h.call(ctx, headRequest{op: headGet})
}

// Set replaces the head and returns the previous value.
func (h *HeadActor) Set(ctx context.Context, addr *ir.Address) (*ir.Address, error) {
	return h.call(ctx, headRequest{op: headSet, value: copyAddress(addr)})
}

// Advance atomically reads the head, passes it to fn, and installs fn's
// result as the new head. If fn fails the head is unchanged.
func (h *HeadActor) Advance(ctx context.Context, fn AdvanceFunc) (*ir.Address, error) {
	return h.call(ctx, headRequest{op: headAdvance, advance: fn})
}

// Stop terminates the actor and waits for it to exit. Safe to call more
// than once.
func (h *HeadActor) Stop() {
	h.once.Do(func() { close(h.quit) })
	<-h.done
}

func copyAddress(a *ir.Address) *ir.Address {
	if a == nil {
		return nil
	}
	return a.Ptr()
}

func derefAddress(a *ir.Address) ir.Address {
	if a == nil {
		return ""
	}
	return *a
}

func headString(a *ir.Address) string {
	if a == nil {
		return "<empty>"
	}
	return a.String()
}

package chain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/ir"
)

// SourceChain is a handle over a content store and a head actor. It holds
// no mutable state of its own; Clone is cheap and clones share history.
type SourceChain struct {
	store  *cas.Actor
	head   *HeadActor
	clock  func() time.Time
	signer Signer
}

// Option configures a SourceChain.
type Option func(*SourceChain)

// WithClock sets the timestamp source used by NewDraft.
func WithClock(clock func() time.Time) Option {
	return func(c *SourceChain) {
		c.clock = clock
	}
}

// WithSigner sets the signer used by NewDraft. Without one, drafts carry an
// empty signature.
func WithSigner(s Signer) Option {
	return func(c *SourceChain) {
		c.signer = s
	}
}

// New creates a chain handle over store and head.
func New(store *cas.Actor, head *HeadActor, opts ...Option) *SourceChain {
	c := &SourceChain{
		store: store,
		head:  head,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Clone returns a new handle sharing both actors.
func (c *SourceChain) Clone() *SourceChain {
	clone := *c
	return &clone
}

// Store returns the content store actor.
func (c *SourceChain) Store() *cas.Actor { return c.store }

// Head returns the head actor.
func (c *SourceChain) Head() *HeadActor { return c.head }

// NewDraft fills in the entry address, timestamp and (when a signer is
// configured) signature for entry.
func (c *SourceChain) NewDraft(entry ir.Entry) (ir.HeaderDraft, error) {
	if err := entry.Validate(); err != nil {
		return ir.HeaderDraft{}, fmt.Errorf("new draft: %w", err)
	}
	addr, err := entry.Address()
	if err != nil {
		return ir.HeaderDraft{}, fmt.Errorf("new draft: %w", err)
	}

	draft := ir.HeaderDraft{
		EntryType:    entry.EntryType,
		EntryAddress: addr,
		Timestamp:    c.clock().UTC().Format(time.RFC3339Nano),
	}
	if c.signer != nil {
		sig, err := c.signer.Sign(addr)
		if err != nil {
			return ir.HeaderDraft{}, fmt.Errorf("new draft: sign: %w", err)
		}
		draft.Signature = sig
	}
	return draft, nil
}

// PushEntry stores entry and appends a header for it built from draft.
//
// The draft must describe entry: a different entry type fails with
// ErrEntryTypeMismatch, a different address with ErrEntryAddressMismatch.
// Entries and draft types that do not pass ir validation are rejected, never
// rewritten, so the returned header is exactly the one stored.
// If the head cannot be advanced after the header was stored, the error is
// a *ConsistencyError and the header is left orphaned in the store.
func (c *SourceChain) PushEntry(ctx context.Context, draft ir.HeaderDraft, entry ir.Entry) (ir.ChainHeader, error) {
	if err := entry.Validate(); err != nil {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w", err)
	}
	if err := ir.ValidateEntryType(draft.EntryType); err != nil {
		return ir.ChainHeader{}, fmt.Errorf("push entry: draft: %w", err)
	}
	if draft.EntryType != entry.EntryType {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w: draft %q, entry %q",
			ErrEntryTypeMismatch, draft.EntryType, entry.EntryType)
	}

	data, err := entry.Canonical()
	if err != nil {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w", err)
	}
	if ir.AddressOf(data) != draft.EntryAddress {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w", ErrEntryAddressMismatch)
	}
	if _, err := c.store.Put(ctx, data); err != nil {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w", err)
	}

	var header ir.ChainHeader
	next, err := c.head.Advance(ctx, func(cur *ir.Address) (*ir.Address, error) {
		h := ir.ChainHeader{
			EntryType:    draft.EntryType,
			Timestamp:    draft.Timestamp,
			Link:         cur,
			EntryAddress: draft.EntryAddress,
			Signature:    draft.Signature,
		}
		if cur != nil {
			prev, _, found, err := c.findOfType(ctx, "push", *cur, draft.EntryType)
			if err != nil {
				return nil, err
			}
			if found {
				h.LinkSameType = prev.Ptr()
			}
		}

		hdata, err := h.Canonical()
		if err != nil {
			return nil, err
		}
		addr, err := c.store.Put(ctx, hdata)
		if err != nil {
			return nil, err
		}
		header = h
		return addr.Ptr(), nil
	})
	if err != nil {
		return ir.ChainHeader{}, fmt.Errorf("push entry: %w", err)
	}

	slog.Info("entry pushed",
		"chain", c.head.Name(),
		"entry_type", header.EntryType,
		"entry", header.EntryAddress,
		"header", headString(next),
	)
	return header, nil
}

// Commit builds a draft for entry and pushes it.
func (c *SourceChain) Commit(ctx context.Context, entry ir.Entry) (ir.ChainHeader, error) {
	draft, err := c.NewDraft(entry)
	if err != nil {
		return ir.ChainHeader{}, err
	}
	return c.PushEntry(ctx, draft, entry)
}

// Header returns the header stored at addr.
func (c *SourceChain) Header(ctx context.Context, addr ir.Address) (ir.ChainHeader, bool, error) {
	data, found, err := c.store.Get(ctx, addr)
	if err != nil || !found {
		return ir.ChainHeader{}, false, err
	}
	h, err := ir.DecodeHeader(data)
	if err != nil {
		return ir.ChainHeader{}, false, err
	}
	return h, true, nil
}

// Entry returns the entry stored at addr. This is a direct store lookup,
// independent of chain membership.
func (c *SourceChain) Entry(ctx context.Context, addr ir.Address) (ir.Entry, bool, error) {
	data, found, err := c.store.Get(ctx, addr)
	if err != nil || !found {
		return ir.Entry{}, false, err
	}
	e, err := ir.DecodeEntry(data)
	if err != nil {
		return ir.Entry{}, false, err
	}
	return e, true, nil
}

// TopHeader returns the current head header.
func (c *SourceChain) TopHeader(ctx context.Context) (ir.ChainHeader, bool, error) {
	head, err := c.head.Get(ctx)
	if err != nil || head == nil {
		return ir.ChainHeader{}, false, err
	}
	h, found, err := c.Header(ctx, *head)
	if err != nil {
		return ir.ChainHeader{}, false, err
	}
	if !found {
		return ir.ChainHeader{}, false, missingHeader("top", *head)
	}
	return h, true, nil
}

// TopHeaderOfType returns the most recent header with the given entry
// type, scanning from the head.
func (c *SourceChain) TopHeaderOfType(ctx context.Context, entryType string) (ir.ChainHeader, bool, error) {
	head, err := c.head.Get(ctx)
	if err != nil || head == nil {
		return ir.ChainHeader{}, false, err
	}
	_, h, found, err := c.findOfType(ctx, "top_of_type", *head, entryType)
	return h, found, err
}

// Headers returns every header from head to genesis.
func (c *SourceChain) Headers(ctx context.Context) ([]ir.ChainHeader, error) {
	head, err := c.head.Get(ctx)
	if err != nil {
		return nil, err
	}
	var out []ir.ChainHeader
	err = c.walk(ctx, "headers", head, func(_ ir.Address, h ir.ChainHeader) bool {
		out = append(out, h)
		return true
	})
	return out, err
}

// Equal reports whether both handles have equal top headers. Hash linking
// makes equal heads imply identical history.
func (c *SourceChain) Equal(ctx context.Context, other *SourceChain) (bool, error) {
	a, okA, err := c.TopHeader(ctx)
	if err != nil {
		return false, err
	}
	b, okB, err := other.TopHeader(ctx)
	if err != nil {
		return false, err
	}
	if okA != okB {
		return false, nil
	}
	return !okA || a.Equal(b), nil
}

// walk visits headers from start towards genesis until fn returns false.
// A missing linked header is reported as a *ConsistencyError.
func (c *SourceChain) walk(ctx context.Context, op string, start *ir.Address, fn func(ir.Address, ir.ChainHeader) bool) error {
	for next := start; next != nil; {
		addr := *next
		h, found, err := c.Header(ctx, addr)
		if err != nil {
			return err
		}
		if !found {
			return missingHeader(op, addr)
		}
		if !fn(addr, h) {
			return nil
		}
		next = h.Link
	}
	return nil
}

// findOfType returns the first header of entryType at or before from.
func (c *SourceChain) findOfType(ctx context.Context, op string, from ir.Address, entryType string) (ir.Address, ir.ChainHeader, bool, error) {
	var (
		addr  ir.Address
		match ir.ChainHeader
		found bool
	)
	err := c.walk(ctx, op, &from, func(a ir.Address, h ir.ChainHeader) bool {
		if h.EntryType == entryType {
			addr, match, found = a, h, true
			return false
		}
		return true
	})
	return addr, match, found, err
}

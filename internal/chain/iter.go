package chain

import (
	"context"
	"iter"

	"github.com/roach88/sourcechain/internal/ir"
)

// Iterator yields headers from the head captured at creation back to
// genesis. It is single-use; call Iter again to restart.
//
// A linked header missing from the store is unrecoverable: Next panics
// with a *ConsistencyError. Store errors end iteration and are reported by
// Err.
type Iterator struct {
	ctx   context.Context
	chain *SourceChain
	next  *ir.Address
	err   error
}

// Iter returns an iterator positioned at the current head.
func (c *SourceChain) Iter(ctx context.Context) (*Iterator, error) {
	head, err := c.head.Get(ctx)
	if err != nil {
		return nil, err
	}
	return &Iterator{ctx: ctx, chain: c, next: head}, nil
}

// Next returns the next header, or false when the chain is exhausted or a
// store error occurred.
func (it *Iterator) Next() (ir.ChainHeader, bool) {
	if it.next == nil || it.err != nil {
		return ir.ChainHeader{}, false
	}
	addr := *it.next
	h, found, err := it.chain.Header(it.ctx, addr)
	if err != nil {
		it.err = err
		it.next = nil
		return ir.ChainHeader{}, false
	}
	if !found {
		panic(missingHeader("iterate", addr))
	}
	it.next = h.Link
	return h, true
}

// Err returns the store error that ended iteration, if any.
func (it *Iterator) Err() error { return it.err }

// All adapts the iterator to a range-over-func sequence.
func (it *Iterator) All() iter.Seq[ir.ChainHeader] {
	return func(yield func(ir.ChainHeader) bool) {
		for {
			h, ok := it.Next()
			if !ok || !yield(h) {
				return
			}
		}
	}
}

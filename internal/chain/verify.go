package chain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/sourcechain/internal/ir"
)

// Verify walks the whole chain and checks every link invariant:
//   - each header's entry is present and has the header's entry type
//   - each link_same_type points at the nearest earlier header of that type
//   - each non-empty signature verifies, when the chain has a signer
//
// Entry bytes are checked against their address by the store on read.
func (c *SourceChain) Verify(ctx context.Context) error {
	type step struct {
		addr   ir.Address
		header ir.ChainHeader
	}

	head, err := c.head.Get(ctx)
	if err != nil {
		return err
	}
	var steps []step
	if err := c.walk(ctx, "verify", head, func(a ir.Address, h ir.ChainHeader) bool {
		steps = append(steps, step{addr: a, header: h})
		return true
	}); err != nil {
		return err
	}
	slices.Reverse(steps)

	lastOfType := make(map[string]ir.Address)
	for _, s := range steps {
		h := s.header

		e, found, err := c.Entry(ctx, h.EntryAddress)
		if err != nil {
			return err
		}
		if !found {
			return &ConsistencyError{Op: "verify", Address: h.EntryAddress, Message: "entry missing from store"}
		}
		if e.EntryType != h.EntryType {
			return &ConsistencyError{
				Op:      "verify",
				Address: s.addr,
				Message: fmt.Sprintf("header type %q does not match entry type %q", h.EntryType, e.EntryType),
			}
		}

		var want *ir.Address
		if prev, ok := lastOfType[h.EntryType]; ok {
			want = prev.Ptr()
		}
		if !ir.SameAddress(h.LinkSameType, want) {
			return &ConsistencyError{
				Op:      "verify",
				Address: s.addr,
				Message: fmt.Sprintf("link_same_type is %s, want %s", headString(h.LinkSameType), headString(want)),
			}
		}
		lastOfType[h.EntryType] = s.addr

		if c.signer != nil && h.Signature != "" && !c.signer.Verify(h.EntryAddress, h.Signature) {
			return &ConsistencyError{Op: "verify", Address: s.addr, Message: "signature does not verify"}
		}
	}

	slog.Debug("chain verified", "chain", c.head.Name(), "headers", len(steps))
	return nil
}

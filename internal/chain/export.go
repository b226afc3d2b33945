package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/ir"
)

// Record is one element of the chain export: a header and its entry.
// Field order and names form the export JSON shape.
type Record struct {
	Header ir.ChainHeader `json:"header"`
	Entry  ir.Entry       `json:"entry"`
}

// Records returns header/entry pairs from head to genesis.
func (c *SourceChain) Records(ctx context.Context) ([]Record, error) {
	headers, err := c.Headers(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(headers))
	for _, h := range headers {
		e, found, err := c.Entry(ctx, h.EntryAddress)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &ConsistencyError{
				Op:      "export",
				Address: h.EntryAddress,
				Message: "entry missing from store",
			}
		}
		records = append(records, Record{Header: h, Entry: e})
	}
	return records, nil
}

// Export serializes the chain as a head-first JSON array. Absent links are
// written as null.
func (c *SourceChain) Export(ctx context.Context) ([]byte, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return data, nil
}

// Import rebuilds an exported chain on an empty head. Every header is
// rebuilt genesis first from its entry, timestamp and signature and must be
// byte-identical to the exported one. Nothing becomes reachable until the
// whole export has been checked: the head is installed in a single Advance,
// so a rejected import leaves the head empty and can be retried.
func Import(ctx context.Context, store *cas.Actor, head *HeadActor, data []byte, opts ...Option) (*SourceChain, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("import: decode: %w", ir.ErrInvalidUTF8)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("import: decode: %w", err)
	}

	cur, err := head.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if cur != nil {
		return nil, fmt.Errorf("import: %w", ErrImportNotEmpty)
	}

	blobs, top, err := replay(records)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	for _, b := range blobs {
		if _, err := store.Put(ctx, b); err != nil {
			return nil, fmt.Errorf("import: %w", err)
		}
	}
	_, err = head.Advance(ctx, func(cur *ir.Address) (*ir.Address, error) {
		if cur != nil {
			return nil, ErrImportNotEmpty
		}
		return top, nil
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return New(store, head, opts...), nil
}

// replay rebuilds the headers of a head-first export without touching any
// store. It returns the canonical entry and header bytes in push order and
// the address of the rebuilt top header.
func replay(records []Record) ([][]byte, *ir.Address, error) {
	var (
		prev   *ir.Address
		byType = make(map[string]ir.Address)
		blobs  = make([][]byte, 0, 2*len(records))
	)
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if err := rec.Entry.Validate(); err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.Header.EntryType != rec.Entry.EntryType {
			return nil, nil, fmt.Errorf("record %d: %w", i, ErrEntryTypeMismatch)
		}
		edata, err := rec.Entry.Canonical()
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		if ir.AddressOf(edata) != rec.Header.EntryAddress {
			return nil, nil, fmt.Errorf("record %d: %w", i, ErrEntryAddressMismatch)
		}

		h := ir.ChainHeader{
			EntryType:    rec.Entry.EntryType,
			Timestamp:    rec.Header.Timestamp,
			Link:         prev,
			EntryAddress: rec.Header.EntryAddress,
			Signature:    rec.Header.Signature,
		}
		if same, ok := byType[h.EntryType]; ok {
			h.LinkSameType = same.Ptr()
		}
		if !h.Equal(rec.Header) {
			return nil, nil, fmt.Errorf("record %d: %w", i, ErrImportMismatch)
		}
		hdata, err := h.Canonical()
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}

		addr := ir.AddressOf(hdata)
		blobs = append(blobs, edata, hdata)
		prev = addr.Ptr()
		byType[h.EntryType] = addr
	}
	return blobs, prev, nil
}

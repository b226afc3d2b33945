package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/engine"
	"github.com/roach88/sourcechain/internal/ir"
)

// ReturnCode is the status of a guest call. Values are part of the guest
// ABI and must never change.
type ReturnCode int32

const (
	CodeSuccess           ReturnCode = 0
	CodeDecodeError       ReturnCode = 1
	CodeActionFailed      ReturnCode = 2
	CodeTimeout           ReturnCode = 3
	CodeMemoryOutOfBounds ReturnCode = 4
	CodeBufferTooSmall    ReturnCode = 5
)

func (c ReturnCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeDecodeError:
		return "decode_error"
	case CodeActionFailed:
		return "action_failed"
	case CodeTimeout:
		return "timeout"
	case CodeMemoryOutOfBounds:
		return "memory_out_of_bounds"
	case CodeBufferTooSmall:
		return "buffer_too_small"
	default:
		return fmt.Sprintf("code(%d)", int32(c))
	}
}

// Dispatcher submits an action and waits for its response.
// *engine.Engine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, a action.Action) (action.Response, error)
}

// Host serves guest calls against a Dispatcher.
type Host struct {
	d Dispatcher
}

// New returns a Host dispatching through d.
func New(d Dispatcher) *Host {
	return &Host{d: d}
}

// GetLinksArgs are the arguments of get_links.
type GetLinksArgs struct {
	EntryHash ir.Address `json:"entry_hash"`
	Tag       string     `json:"tag"`
}

// AddLinkArgs are the arguments of add_link.
type AddLinkArgs struct {
	Base   ir.Address `json:"base"`
	Target ir.Address `json:"target"`
	Tag    string     `json:"tag"`
}

// CommitArgs are the arguments of commit_entry.
type CommitArgs struct {
	EntryType string `json:"entry_type"`
	Content   string `json:"content"`
}

// GetEntryArgs are the arguments of get_entry.
type GetEntryArgs struct {
	EntryHash ir.Address `json:"entry_hash"`
}

// GetLinks returns the link targets as a JSON array of addresses.
func (h *Host) GetLinks(ctx context.Context, args []byte) ([]byte, ReturnCode) {
	var in GetLinksArgs
	if err := decodeArgs(args, &in); err != nil {
		return decodeFailure("get_links", err)
	}
	resp, code := h.dispatch(ctx, action.GetLinks{Base: in.EntryHash, Tag: in.Tag})
	if code != CodeSuccess {
		return nil, code
	}
	links := make(ir.IRArray, 0, len(resp.Links))
	for _, l := range resp.Links {
		links = append(links, ir.IRString(l))
	}
	return encode(links)
}

// AddLink records a link. The result is the target address as a JSON
// string.
func (h *Host) AddLink(ctx context.Context, args []byte) ([]byte, ReturnCode) {
	var in AddLinkArgs
	if err := decodeArgs(args, &in); err != nil {
		return decodeFailure("add_link", err)
	}
	resp, code := h.dispatch(ctx, action.AddLink{Base: in.Base, Target: in.Target, Tag: in.Tag})
	if code != CodeSuccess {
		return nil, code
	}
	return encode(ir.IRString(resp.Address))
}

// Commit appends an entry to the chain. The result holds the entry and
// header addresses and is always CommitResultSize bytes. The entry is
// committed exactly as given; an entry type that is not NFC-normalized is
// a decode error.
func (h *Host) Commit(ctx context.Context, args []byte) ([]byte, ReturnCode) {
	var in CommitArgs
	if err := decodeArgs(args, &in); err != nil {
		return decodeFailure("commit_entry", err)
	}
	resp, code := h.dispatch(ctx, action.Commit{Entry: ir.Entry{EntryType: in.EntryType, Content: in.Content}})
	if code != CodeSuccess {
		return nil, code
	}
	out := ir.IRObject{"entry_hash": ir.IRString(resp.Address)}
	if resp.Header != nil {
		addr, err := resp.Header.Address()
		if err != nil {
			slog.Error("guest call result encoding failed", "call", "commit_entry", "error", err)
			return nil, CodeActionFailed
		}
		out["header_hash"] = ir.IRString(addr)
	}
	return encode(out)
}

// GetEntry returns the entry as canonical JSON, or an empty object when
// the address is unknown.
func (h *Host) GetEntry(ctx context.Context, args []byte) ([]byte, ReturnCode) {
	var in GetEntryArgs
	if err := decodeArgs(args, &in); err != nil {
		return decodeFailure("get_entry", err)
	}
	resp, code := h.dispatch(ctx, action.GetEntry{Address: in.EntryHash})
	if code != CodeSuccess {
		return nil, code
	}
	if !resp.Found || resp.Entry == nil {
		return []byte("{}"), CodeSuccess
	}
	data, err := resp.Entry.Canonical()
	if err != nil {
		slog.Error("guest call result encoding failed", "call", "get_entry", "error", err)
		return nil, CodeActionFailed
	}
	return data, CodeSuccess
}

// dispatch runs a and maps every failure to a ReturnCode.
func (h *Host) dispatch(ctx context.Context, a action.Action) (action.Response, ReturnCode) {
	resp, err := h.d.Dispatch(ctx, a)
	switch {
	case err == nil && resp.Err == nil:
		return resp, CodeSuccess
	case err == nil:
		slog.Debug("guest action failed", "kind", a.Kind(), "action_id", resp.ActionID, "error", resp.Err)
		return action.Response{}, CodeActionFailed
	case errors.Is(err, engine.ErrInvalidAction):
		slog.Debug("guest action rejected", "kind", a.Kind(), "error", err)
		return action.Response{}, CodeDecodeError
	case engine.IsTimeout(err):
		slog.Warn("guest call timed out", "kind", a.Kind(), "error", err)
		return action.Response{}, CodeTimeout
	default:
		slog.Warn("guest call dispatch failed", "kind", a.Kind(), "error", err)
		return action.Response{}, CodeActionFailed
	}
}

func decodeArgs(args []byte, v any) error {
	if !utf8.Valid(args) {
		return ir.ErrInvalidUTF8
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after arguments")
	}
	return nil
}

func decodeFailure(call string, err error) ([]byte, ReturnCode) {
	slog.Debug("guest call arguments rejected", "call", call, "error", err)
	return nil, CodeDecodeError
}

func encode(v ir.IRValue) ([]byte, ReturnCode) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		slog.Error("guest call result encoding failed", "error", err)
		return nil, CodeActionFailed
	}
	return data, CodeSuccess
}

package hostapi

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ModuleName is the import module guests link the host calls from.
const ModuleName = "env"

// Exported host function names.
const (
	FuncGetLinks = "get_links"
	FuncAddLink  = "add_link"
	FuncCommit   = "commit_entry"
	FuncGetEntry = "get_entry"
)

// CommitResultSize is the length of every commit_entry result: the JSON
// object {"entry_hash":"<64 hex>","header_hash":"<64 hex>"}. A guest must
// pass an output buffer at least this large; smaller buffers and out of
// range buffers are rejected before the entry is committed.
const CommitResultSize = 162

type callFunc func(ctx context.Context, args []byte) ([]byte, ReturnCode)

type guestFunc func(ctx context.Context, m api.Module, argPtr, argLen, outPtr, outCap uint32) int32

// Instantiate registers the host module in r. It must run before any
// guest importing ModuleName is instantiated.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	mod, err := r.NewHostModuleBuilder(ModuleName).
		NewFunctionBuilder().WithFunc(guestCall(FuncGetLinks, h.GetLinks, 0)).Export(FuncGetLinks).
		NewFunctionBuilder().WithFunc(guestCall(FuncAddLink, h.AddLink, 0)).Export(FuncAddLink).
		NewFunctionBuilder().WithFunc(guestCall(FuncCommit, h.Commit, CommitResultSize)).Export(FuncCommit).
		NewFunctionBuilder().WithFunc(guestCall(FuncGetEntry, h.GetEntry, 0)).Export(FuncGetEntry).
		Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("hostapi: instantiate %q: %w", ModuleName, err)
	}
	return mod, nil
}

// guestCall adapts a byte-level call to the guest memory ABI. m is the
// calling guest module. When reserve is non-zero the output buffer must
// hold reserve bytes and is checked before fn runs, so calls with side
// effects never fail after the fact on a short buffer.
func guestCall(name string, fn callFunc, reserve uint32) guestFunc {
	return func(ctx context.Context, m api.Module, argPtr, argLen, outPtr, outCap uint32) int32 {
		mem := m.Memory()
		if mem == nil {
			return fail(name, CodeMemoryOutOfBounds)
		}
		view, ok := mem.Read(argPtr, argLen)
		if !ok {
			return fail(name, CodeMemoryOutOfBounds)
		}
		// The view aliases guest memory; copy before dispatching.
		args := bytes.Clone(view)

		if reserve > 0 {
			if outCap < reserve {
				slog.Debug("guest output buffer too small", "call", name, "need", reserve, "cap", outCap)
				return fail(name, CodeBufferTooSmall)
			}
			if uint64(outPtr)+uint64(reserve) > uint64(mem.Size()) {
				return fail(name, CodeMemoryOutOfBounds)
			}
		}

		out, code := fn(ctx, args)
		if code != CodeSuccess {
			return fail(name, code)
		}
		if uint32(len(out)) > outCap {
			slog.Debug("guest output buffer too small", "call", name, "need", len(out), "cap", outCap)
			return fail(name, CodeBufferTooSmall)
		}
		if !mem.Write(outPtr, out) {
			return fail(name, CodeMemoryOutOfBounds)
		}
		return int32(len(out))
	}
}

func fail(name string, code ReturnCode) int32 {
	slog.Debug("guest call failed", "call", name, "code", code)
	return -int32(code)
}

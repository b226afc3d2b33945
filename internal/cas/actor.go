package cas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sourcechain/internal/ir"
)

var (
	// ErrStoreUnavailable is returned once the actor has stopped.
	ErrStoreUnavailable = errors.New("content store unavailable")

	// ErrCorruptContent is returned when stored bytes no longer hash to
	// their key.
	ErrCorruptContent = errors.New("stored content does not match its address")
)

type opKind int

const (
	opGet opKind = iota + 1
	opPut
	opCount
)

type request struct {
	op      opKind
	ctx     context.Context
	addr    ir.Address
	content []byte
	reply   chan result // buffered, size 1
}

type result struct {
	content []byte
	found   bool
	count   int
	err     error
}

// Actor serializes all access to a Backend through one goroutine.
//
// Thread-safety: all methods are safe for concurrent use. Requests are
// processed one at a time in arrival order.
type Actor struct {
	backend Backend
	inbox   chan request
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Start spawns the actor goroutine over b.
// The caller keeps ownership of b and closes it after Stop.
func Start(b Backend) *Actor {
	a := &Actor{
		backend: b,
		inbox:   make(chan request),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Actor) loop() {
	defer close(a.done)
	slog.Info("cas actor started", "backend", a.backend.Name())

	for {
		select {
		case <-a.quit:
			slog.Info("cas actor stopped", "backend", a.backend.Name())
			return
		case req := <-a.inbox:
			req.reply <- a.handle(req)
		}
	}
}

func (a *Actor) handle(req request) result {
	switch req.op {
	case opGet:
		content, found, err := a.backend.Get(req.ctx, req.addr)
		if err != nil {
			return result{err: fmt.Errorf("cas get %s: %w", req.addr, err)}
		}
		if found && ir.AddressOf(content) != req.addr {
			slog.Error("cas content mismatch", "address", req.addr, "backend", a.backend.Name())
			return result{err: fmt.Errorf("cas get %s: %w", req.addr, ErrCorruptContent)}
		}
		return result{content: content, found: found}
	case opPut:
		if err := a.backend.Put(req.ctx, req.addr, req.content); err != nil {
			return result{err: fmt.Errorf("cas put %s: %w", req.addr, err)}
		}
		slog.Debug("cas put", "address", req.addr, "bytes", len(req.content))
		return result{}
	case opCount:
		n, err := a.backend.Count(req.ctx)
		if err != nil {
			return result{err: fmt.Errorf("cas count: %w", err)}
		}
		return result{count: n}
	default:
		return result{err: fmt.Errorf("cas: unknown op %d", req.op)}
	}
}

// call submits req and waits for its reply. Once accepted, a request is
// always answered, so the actor never blocks on an abandoned caller.
func (a *Actor) call(ctx context.Context, req request) (result, error) {
	if err := ctx.Err(); err != nil {
		return result{}, err
	}
	req.ctx = ctx
	req.reply = make(chan result, 1)

	select {
	case <-a.quit:
		return result{}, ErrStoreUnavailable
	default:
	}

	select {
	case a.inbox <- req:
	case <-a.quit:
		return result{}, ErrStoreUnavailable
	case <-ctx.Done():
		return result{}, ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	}
}

// Put stores content and returns its address. Callers pass canonical bytes.
func (a *Actor) Put(ctx context.Context, content []byte) (ir.Address, error) {
	addr := ir.AddressOf(content)
	if _, err := a.call(ctx, request{op: opPut, addr: addr, content: content}); err != nil {
		return "", err
	}
	return addr, nil
}

// Get returns the content stored at addr.
func (a *Actor) Get(ctx context.Context, addr ir.Address) ([]byte, bool, error) {
	res, err := a.call(ctx, request{op: opGet, addr: addr})
	if err != nil {
		return nil, false, err
	}
	return res.content, res.found, nil
}

// Count returns the number of stored objects.
func (a *Actor) Count(ctx context.Context) (int, error) {
	res, err := a.call(ctx, request{op: opCount})
	if err != nil {
		return 0, err
	}
	return res.count, nil
}

// Backend returns the backend name, for diagnostics.
func (a *Actor) Backend() string {
	return a.backend.Name()
}

// Stop terminates the actor and waits for it to exit. Subsequent calls
// fail with ErrStoreUnavailable. Safe to call more than once.
func (a *Actor) Stop() {
	a.once.Do(func() { close(a.quit) })
	<-a.done
}

package cas

import (
	"context"

	"github.com/roach88/sourcechain/internal/ir"
)

// Backend is the key/value map behind the Actor. Implementations are only
// ever called from the actor goroutine and need not be safe for concurrent
// use, except where they also serve as a HeadStore.
type Backend interface {
	// Name identifies the backend kind in logs and diagnostics.
	Name() string
	// Get returns the stored bytes for addr; found is false when absent.
	Get(ctx context.Context, addr ir.Address) (content []byte, found bool, err error)
	// Put stores content under addr. Storing an existing address is a no-op.
	Put(ctx context.Context, addr ir.Address, content []byte) error
	// Count returns the number of stored objects.
	Count(ctx context.Context) (int, error)
	Close() error
}

// HeadStore persists named chain heads. A nil address means empty chain.
// Implementations must be safe for concurrent use alongside the Backend.
type HeadStore interface {
	LoadHead(ctx context.Context, name string) (*ir.Address, error)
	StoreHead(ctx context.Context, name string, addr *ir.Address) error
}

// MemoryBackend keeps content in a map. It is not safe for concurrent use;
// the Actor serializes access.
type MemoryBackend struct {
	objects map[ir.Address][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[ir.Address][]byte)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, addr ir.Address) ([]byte, bool, error) {
	content, ok := m.objects[addr]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), content...), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, addr ir.Address, content []byte) error {
	if _, ok := m.objects[addr]; ok {
		return nil
	}
	m.objects[addr] = append([]byte(nil), content...)
	return nil
}

func (m *MemoryBackend) Count(context.Context) (int, error) {
	return len(m.objects), nil
}

func (m *MemoryBackend) Close() error { return nil }

package action

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/sourcechain/internal/ir"
)

// NonceGenerator produces the per-dispatch nonce mixed into wrapper IDs.
type NonceGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 nonces.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined nonces in order, for tests.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	nonces []string
	idx    int
}

// NewFixedGenerator creates a generator that returns nonces in order.
func NewFixedGenerator(nonces ...string) *FixedGenerator {
	return &FixedGenerator{nonces: nonces}
}

// Generate returns the next predetermined nonce.
// Panics if all nonces have been consumed.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.nonces) {
		panic("FixedGenerator: all nonces exhausted")
	}
	n := g.nonces[g.idx]
	g.idx++
	return n
}

// Wrapper pairs an action with the unique ID its response is keyed by.
type Wrapper struct {
	ID     string
	Action Action
}

// Wrap validates a and assigns it a fresh ID drawn from gen.
func Wrap(a Action, gen NonceGenerator) (Wrapper, error) {
	if a == nil {
		return Wrapper{}, fmt.Errorf("wrap: nil action")
	}
	if err := a.Validate(); err != nil {
		return Wrapper{}, err
	}
	id, err := WrapperID(a, gen.Generate())
	if err != nil {
		return Wrapper{}, err
	}
	return Wrapper{ID: id, Action: a}, nil
}

// WrapperID computes the content-addressed ID of a with the given nonce.
func WrapperID(a Action, nonce string) (string, error) {
	data, err := ir.MarshalCanonical(ir.IRObject{
		"kind":    ir.IRString(a.Kind()),
		"payload": a.Payload(),
		"nonce":   ir.IRString(nonce),
	})
	if err != nil {
		return "", fmt.Errorf("wrapper id: %w", err)
	}
	return ir.DigestWithDomain(ir.DomainAction, data), nil
}

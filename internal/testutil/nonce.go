package testutil

import (
	"fmt"
	"sync/atomic"
)

// CountingNonceGenerator yields "<prefix>-1", "<prefix>-2", ... without
// ever running out.
//
// Unlike action.FixedGenerator, which returns a finite predetermined list,
// this generator suits tests that dispatch an unknown number of actions but
// still want reproducible wrapper IDs.
//
// Thread-safety: CountingNonceGenerator is safe for concurrent use.
type CountingNonceGenerator struct {
	prefix string
	n      atomic.Int64
}

// NewCountingNonceGenerator creates a generator. An empty prefix becomes
// "nonce".
func NewCountingNonceGenerator(prefix string) *CountingNonceGenerator {
	if prefix == "" {
		prefix = "nonce"
	}
	return &CountingNonceGenerator{prefix: prefix}
}

// Generate returns the next nonce.
//
// Implements action.NonceGenerator interface.
func (g *CountingNonceGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1))
}

// Count returns how many nonces have been generated.
func (g *CountingNonceGenerator) Count() int64 {
	return g.n.Load()
}

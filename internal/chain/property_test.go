package chain

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/roach88/sourcechain/internal/cas"
	"github.com/roach88/sourcechain/internal/ir"
)

var entryTypes = []string{"A", "B", "C"}

// newPropertyChain builds a chain whose actors are stopped by the returned
// func; property bodies run many times per test and cannot use t.Cleanup.
func newPropertyChain() (*SourceChain, func(), error) {
	store := cas.Start(cas.NewMemoryBackend())
	head, err := NewHeadActor(context.Background(), nil, "property")
	if err != nil {
		store.Stop()
		return nil, nil, err
	}
	return New(store, head), func() {
		head.Stop()
		store.Stop()
	}, nil
}

// TestPushSequenceProperties checks top, iteration order and top-of-type
// against the list of pushed headers for arbitrary type sequences.
func TestPushSequenceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	push := func(types []int) ([]ir.ChainHeader, *SourceChain, func(), error) {
		c, stop, err := newPropertyChain()
		if err != nil {
			return nil, nil, nil, err
		}
		var pushed []ir.ChainHeader
		for i, ti := range types {
			h, err := c.Commit(context.Background(), ir.NewEntry(entryTypes[ti], fmt.Sprintf("entry %d", i)))
			if err != nil {
				stop()
				return nil, nil, nil, err
			}
			pushed = append(pushed, h)
		}
		return pushed, c, stop, nil
	}

	properties.Property("top header is the last pushed header", prop.ForAll(
		func(types []int) bool {
			pushed, c, stop, err := push(types)
			if err != nil {
				return false
			}
			defer stop()

			top, found, err := c.TopHeader(context.Background())
			if err != nil {
				return false
			}
			if len(pushed) == 0 {
				return !found
			}
			return found && top.Equal(pushed[len(pushed)-1])
		},
		gen.SliceOf(gen.IntRange(0, len(entryTypes)-1)),
	))

	properties.Property("iteration yields pushes in reverse order", prop.ForAll(
		func(types []int) bool {
			pushed, c, stop, err := push(types)
			if err != nil {
				return false
			}
			defer stop()

			headers, err := c.Headers(context.Background())
			if err != nil || len(headers) != len(pushed) {
				return false
			}
			for i := range pushed {
				if !headers[i].Equal(pushed[len(pushed)-1-i]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(entryTypes)-1)),
	))

	properties.Property("top of type is the most recent push of that type", prop.ForAll(
		func(types []int) bool {
			pushed, c, stop, err := push(types)
			if err != nil {
				return false
			}
			defer stop()

			for _, et := range entryTypes {
				var want *ir.ChainHeader
				for i := len(pushed) - 1; i >= 0; i-- {
					if pushed[i].EntryType == et {
						want = &pushed[i]
						break
					}
				}
				got, found, err := c.TopHeaderOfType(context.Background(), et)
				if err != nil || found != (want != nil) {
					return false
				}
				if want != nil && !got.Equal(*want) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(entryTypes)-1)),
	))

	properties.Property("export then import is exact", prop.ForAll(
		func(types []int) bool {
			_, c, stop, err := push(types)
			if err != nil {
				return false
			}
			defer stop()
			ctx := context.Background()

			data, err := c.Export(ctx)
			if err != nil {
				return false
			}
			target, stopTarget, err := newPropertyChain()
			if err != nil {
				return false
			}
			defer stopTarget()

			imported, err := Import(ctx, target.Store(), target.Head(), data)
			if err != nil {
				return false
			}
			eq, err := c.Equal(ctx, imported)
			return err == nil && eq
		},
		gen.SliceOf(gen.IntRange(0, len(entryTypes)-1)),
	))

	properties.TestingRun(t)
}

// chainMachine drives a chain and a plain slice model side by side.
type chainMachine struct {
	chain *SourceChain
	stop  func()
	model []ir.ChainHeader
	n     int
}

func (m *chainMachine) init(t *rapid.T) {
	c, stop, err := newPropertyChain()
	if err != nil {
		t.Fatalf("new chain: %v", err)
	}
	m.chain, m.stop = c, stop
}

func (m *chainMachine) Push(t *rapid.T) {
	et := rapid.SampledFrom(entryTypes).Draw(t, "entryType")
	m.n++
	h, err := m.chain.Commit(context.Background(), ir.NewEntry(et, fmt.Sprintf("content %d", m.n)))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	m.model = append(m.model, h)
}

func (m *chainMachine) LookupEntry(t *rapid.T) {
	if len(m.model) == 0 {
		t.Skip("empty chain")
	}
	i := rapid.IntRange(0, len(m.model)-1).Draw(t, "index")
	e, found, err := m.chain.Entry(context.Background(), m.model[i].EntryAddress)
	if err != nil || !found {
		t.Fatalf("entry %d: found=%v err=%v", i, found, err)
	}
	if e.EntryType != m.model[i].EntryType {
		t.Fatalf("entry %d: type %q, want %q", i, e.EntryType, m.model[i].EntryType)
	}
}

func (m *chainMachine) Check(t *rapid.T) {
	ctx := context.Background()
	headers, err := m.chain.Headers(ctx)
	if err != nil {
		t.Fatalf("headers: %v", err)
	}
	if len(headers) != len(m.model) {
		t.Fatalf("chain has %d headers, model %d", len(headers), len(m.model))
	}
	for i, h := range headers {
		if !h.Equal(m.model[len(m.model)-1-i]) {
			t.Fatalf("header %d differs from model", i)
		}
	}
	if err := m.chain.Verify(ctx); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestChainStateMachine(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := &chainMachine{}
		m.init(t)
		defer m.stop()

		t.Repeat(map[string]func(*rapid.T){
			"Push":        m.Push,
			"LookupEntry": m.LookupEntry,
			"":            m.Check,
		})
	})
}

package cas

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/sourcechain/internal/ir"
)

// Key prefixes. Content and heads share one keyspace.
var (
	contentPrefix = []byte("c/")
	headPrefix    = []byte("h/")
)

// BadgerBackend stores content and heads in a Badger database.
type BadgerBackend struct {
	db *badger.DB
}

var (
	_ Backend   = (*BadgerBackend)(nil)
	_ HeadStore = (*BadgerBackend)(nil)
)

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string) (*BadgerBackend, error) {
	return openBadger(badger.DefaultOptions(dir))
}

// OpenBadgerInMemory opens a Badger database that never touches disk.
func OpenBadgerInMemory() (*BadgerBackend, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true))
}

func openBadger(opts badger.Options) (*BadgerBackend, error) {
	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func contentKey(addr ir.Address) []byte {
	return append(append([]byte(nil), contentPrefix...), string(addr)...)
}

func headKey(name string) []byte {
	return append(append([]byte(nil), headPrefix...), name...)
}

func (b *BadgerBackend) Name() string { return "badger" }

func (b *BadgerBackend) Get(_ context.Context, addr ir.Address) ([]byte, bool, error) {
	var content []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(addr))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read content: %w", err)
	}
	return content, true, nil
}

func (b *BadgerBackend) Put(_ context.Context, addr ir.Address, content []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		key := contentKey(addr)
		if _, err := txn.Get(key); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func (b *BadgerBackend) Count(context.Context) (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(contentPrefix); it.ValidForPrefix(contentPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// LoadHead returns nil for unknown names and for empty chains.
func (b *BadgerBackend) LoadHead(_ context.Context, name string) (*ir.Address, error) {
	var head *ir.Address
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(headKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			head = ir.Address(string(val)).Ptr()
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load head %q: %w", name, err)
	}
	return head, nil
}

// StoreHead deletes the key for an empty chain.
func (b *BadgerBackend) StoreHead(_ context.Context, name string, addr *ir.Address) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if addr == nil {
			return txn.Delete(headKey(name))
		}
		return txn.Set(headKey(name), []byte(*addr))
	})
	if err != nil {
		return fmt.Errorf("store head %q: %w", name, err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

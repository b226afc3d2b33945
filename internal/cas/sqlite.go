package cas

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/sourcechain/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// SQLiteBackend stores content and heads in a SQLite database.
// Uses WAL mode for concurrent reads during writes.
type SQLiteBackend struct {
	db *sql.DB
}

var (
	_ Backend   = (*SQLiteBackend)(nil)
	_ HeadStore = (*SQLiteBackend)(nil)
)

// OpenSQLite creates or opens a SQLite database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Get(ctx context.Context, addr ir.Address) ([]byte, bool, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM content WHERE address = ?`, string(addr),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read content: %w", err)
	}
	return body, true, nil
}

// Put uses ON CONFLICT DO NOTHING; the address is a hash of the body, so an
// existing row already holds identical bytes.
func (s *SQLiteBackend) Put(ctx context.Context, addr ir.Address, content []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content (address, body)
		VALUES (?, ?)
		ON CONFLICT(address) DO NOTHING
	`, string(addr), content)
	if err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count content: %w", err)
	}
	return n, nil
}

// LoadHead returns nil for unknown names and for empty chains.
func (s *SQLiteBackend) LoadHead(ctx context.Context, name string) (*ir.Address, error) {
	var addr sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT address FROM heads WHERE name = ?`, name,
	).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load head %q: %w", name, err)
	}
	if !addr.Valid {
		return nil, nil
	}
	return ir.Address(addr.String).Ptr(), nil
}

func (s *SQLiteBackend) StoreHead(ctx context.Context, name string, addr *ir.Address) error {
	var value sql.NullString
	if addr != nil {
		value = sql.NullString{String: string(*addr), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heads (name, address)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET address = excluded.address
	`, name, value)
	if err != nil {
		return fmt.Errorf("store head %q: %w", name, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLiteBackend) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// Package cas provides the content-addressable store actor.
//
// All reads and writes go through a single goroutine (the Actor) that
// owns a Backend. Content is keyed by its ir.Address, so puts are
// idempotent and every read can be checked against its key.
//
// Three backends ship with the package:
//   - MemoryBackend: a plain map, for tests and throwaway chains
//   - SQLiteBackend: WAL-mode SQLite via mattn/go-sqlite3
//   - BadgerBackend: Badger v4, on disk or in memory
//
// The persistent backends also implement HeadStore, which records named
// chain heads so a restarted process resumes the same chain.
package cas

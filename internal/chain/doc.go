// Package chain implements the source chain: an append-only, hash-linked
// sequence of ChainHeaders over the content store.
//
// # Ownership
//
// The only mutable cell is the head pointer, owned by a HeadActor. Every
// other value (entries, headers) is immutable and lives in the CAS actor.
// A SourceChain is a cheap handle over both actors; clones share them and
// observe one ordered sequence of head updates.
//
// # Push
//
// PushEntry stores the entry, then performs read-head, build-header,
// store-header and set-head as ONE HeadActor message (Advance). Splitting
// it into separate get/set messages would let two handles lose an update.
//
// # Type chain
//
// Each header's LinkSameType points at the nearest earlier header with the
// same entry type. It is computed at push time by walking the main chain
// from the head; there is no side index.
//
// # Consistency
//
// A missing linked header means the store lost data the chain depends on.
// Iterators panic with *ConsistencyError; every other operation returns it.
package chain

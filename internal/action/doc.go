// Package action defines the commands that drive process state.
//
// An Action is one of a closed set of kinds (commit, get_entry, add_link,
// get_links). Every dispatch wraps its action in a Wrapper carrying a
// unique ID so that identical commands issued twice remain individually
// trackable; the matching Response is keyed by that ID.
//
// Wrapper IDs are content-addressed like everything else in the system:
// a domain-separated SHA-256 over the canonical form of
// {kind, payload, nonce}, where the nonce comes from a NonceGenerator
// (UUIDv7 in production, fixed sequences in tests).
package action

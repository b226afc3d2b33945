// Package ir provides the canonical record types of the source chain.
//
// This package contains value types and their canonical encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Every persisted value is addressed by the hash of its canonical bytes
//   - Canonical bytes are RFC 8785 JSON over valid UTF-8, never normalized
//   - NO float types anywhere - use int64 for numbers
//   - Absent optional fields are omitted from canonical form, never null
//   - All JSON tags use snake_case
package ir

package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainContent = "sourcechain/content/v1"
	DomainAction  = "sourcechain/action/v1"
)

// Address is the content address of a canonically serialized value:
// lowercase hex SHA-256 over the content domain and the bytes.
type Address string

// AddressOf computes the address of already-canonical bytes.
// The CAS keys every stored object by this value.
func AddressOf(canonical []byte) Address {
	return Address(hashWithDomain(DomainContent, canonical))
}

// String returns the address as a plain string.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool {
	return a == ""
}

// Ptr returns a pointer to a copy of a, for optional header links.
func (a Address) Ptr() *Address {
	return &a
}

// SameAddress compares two optional addresses; nil equals nil only.
func SameAddress(a, b *Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// DigestWithDomain exposes domain-separated hashing to packages that derive
// identities which are not CAS addresses (action IDs).
func DigestWithDomain(domain string, canonical []byte) string {
	return hashWithDomain(domain, canonical)
}

package ir

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ChainHeader is an immutable record linking one Entry into the chain.
//
// Link points at the header immediately before this one (nil for genesis).
// LinkSameType points at the most recent earlier header with the same
// EntryType, threading a per-type list through the main chain.
//
// Field order and JSON names match the chain export shape.
type ChainHeader struct {
	EntryType    string   `json:"entry_type"`
	Timestamp    string   `json:"timestamp"`
	Link         *Address `json:"link"`
	EntryAddress Address  `json:"entry_hash"`
	Signature    string   `json:"entry_signature"`
	LinkSameType *Address `json:"link_same_type"`
}

// HeaderDraft carries the caller-supplied part of the next header. The
// chain fills in both links when it pushes.
type HeaderDraft struct {
	EntryType    string
	EntryAddress Address
	Timestamp    string
	Signature    string
}

// Canonical returns the canonical bytes stored in the CAS. Absent links
// are omitted rather than encoded as null.
func (h ChainHeader) Canonical() ([]byte, error) {
	obj := IRObject{
		"entry_type":      IRString(h.EntryType),
		"timestamp":       IRString(h.Timestamp),
		"entry_hash":      IRString(h.EntryAddress),
		"entry_signature": IRString(h.Signature),
	}
	if h.Link != nil {
		obj["link"] = IRString(*h.Link)
	}
	if h.LinkSameType != nil {
		obj["link_same_type"] = IRString(*h.LinkSameType)
	}
	return MarshalCanonical(obj)
}

// Address returns the content address of the header. Two headers share an
// address iff their fields are equal.
func (h ChainHeader) Address() (Address, error) {
	data, err := h.Canonical()
	if err != nil {
		return "", fmt.Errorf("header address: %w", err)
	}
	return AddressOf(data), nil
}

// MustAddress is like Address but panics on error.
// Use only in tests or when inputs are known to be valid.
func (h ChainHeader) MustAddress() Address {
	addr, err := h.Address()
	if err != nil {
		panic(err)
	}
	return addr
}

// Equal reports field-wise equality, following links by value.
func (h ChainHeader) Equal(other ChainHeader) bool {
	return h.EntryType == other.EntryType &&
		h.Timestamp == other.Timestamp &&
		SameAddress(h.Link, other.Link) &&
		h.EntryAddress == other.EntryAddress &&
		h.Signature == other.Signature &&
		SameAddress(h.LinkSameType, other.LinkSameType)
}

// Draft returns the caller-supplied part of h. Replaying a draft onto the
// same predecessor reproduces h exactly.
func (h ChainHeader) Draft() HeaderDraft {
	return HeaderDraft{
		EntryType:    h.EntryType,
		EntryAddress: h.EntryAddress,
		Timestamp:    h.Timestamp,
		Signature:    h.Signature,
	}
}

// DecodeHeader parses canonical header bytes read from the CAS.
func DecodeHeader(data []byte) (ChainHeader, error) {
	if !utf8.Valid(data) {
		return ChainHeader{}, fmt.Errorf("decode header: %w", ErrInvalidUTF8)
	}
	var h ChainHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return ChainHeader{}, fmt.Errorf("decode header: %w", err)
	}
	if h.EntryType == "" || h.EntryAddress.IsZero() {
		return ChainHeader{}, fmt.Errorf("decode header: missing entry_type or entry_hash")
	}
	return h, nil
}

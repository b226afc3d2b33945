package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrEmptyEntryType is returned for entries without a type.
	ErrEmptyEntryType = errors.New("entry type must not be empty")

	// ErrEntryTypeNotNFC is returned for entry types that are not in
	// Unicode normal form C. Types are compared byte for byte, so each
	// type has exactly one spelling.
	ErrEntryTypeNotNFC = errors.New("entry type must be NFC-normalized")
)

// Entry is an immutable, typed content record. It lives only in the CAS
// and is referenced from headers by address.
//
// Field order matches the chain export shape: content first.
type Entry struct {
	Content   string `json:"content"`
	EntryType string `json:"entry_type"`
}

// NewEntry builds an entry, NFC-normalizing the type. Content is kept
// byte for byte.
func NewEntry(entryType, content string) Entry {
	return Entry{
		Content:   content,
		EntryType: norm.NFC.String(entryType),
	}
}

// Validate checks the minimal shape needed to keep the chain consistent.
func (e Entry) Validate() error {
	if err := ValidateEntryType(e.EntryType); err != nil {
		return err
	}
	if !utf8.ValidString(e.Content) {
		return fmt.Errorf("content: %w", ErrInvalidUTF8)
	}
	return nil
}

// ValidateEntryType checks that t is a usable entry type: non-empty, valid
// UTF-8 and NFC-normalized.
func ValidateEntryType(t string) error {
	switch {
	case t == "":
		return ErrEmptyEntryType
	case !utf8.ValidString(t):
		return fmt.Errorf("entry type: %w", ErrInvalidUTF8)
	case !norm.NFC.IsNormalString(t):
		return ErrEntryTypeNotNFC
	}
	return nil
}

// Canonical returns the canonical bytes stored in the CAS.
func (e Entry) Canonical() ([]byte, error) {
	return MarshalCanonical(IRObject{
		"content":    IRString(e.Content),
		"entry_type": IRString(e.EntryType),
	})
}

// Address returns the content address of the entry.
func (e Entry) Address() (Address, error) {
	data, err := e.Canonical()
	if err != nil {
		return "", fmt.Errorf("entry address: %w", err)
	}
	return AddressOf(data), nil
}

// MustAddress is like Address but panics on error.
// Use only in tests or when inputs are known to be valid.
func (e Entry) MustAddress() Address {
	addr, err := e.Address()
	if err != nil {
		panic(err)
	}
	return addr
}

// DecodeEntry parses canonical entry bytes read from the CAS. Unknown
// fields are rejected so header bytes never decode as an entry.
func DecodeEntry(data []byte) (Entry, error) {
	if !utf8.Valid(data) {
		return Entry{}, fmt.Errorf("decode entry: %w", ErrInvalidUTF8)
	}
	var e Entry
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return e, nil
}

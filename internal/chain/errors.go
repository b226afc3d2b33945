package chain

import (
	"errors"
	"fmt"

	"github.com/roach88/sourcechain/internal/ir"
)

var (
	// ErrEntryTypeMismatch is returned when a draft's entry type differs
	// from the entry it is pushed with.
	ErrEntryTypeMismatch = errors.New("draft entry type does not match entry")

	// ErrEntryAddressMismatch is returned when a draft's entry address is
	// not the address of the entry it is pushed with.
	ErrEntryAddressMismatch = errors.New("draft entry address does not match entry")

	// ErrImportMismatch is returned when a replayed header differs from the
	// exported one.
	ErrImportMismatch = errors.New("imported header does not match export")

	// ErrImportNotEmpty is returned when importing onto a non-empty head.
	ErrImportNotEmpty = errors.New("import requires an empty chain")
)

// ConsistencyError reports a broken chain invariant: a linked header or
// entry is missing, or the head could not be advanced after its header was
// stored. There is no local recovery.
type ConsistencyError struct {
	// Op is the operation that detected the problem.
	Op string

	// Address is the header or entry address involved.
	Address ir.Address

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	msg := fmt.Sprintf("chain consistency (%s): %s", e.Op, e.Message)
	if e.Address != "" {
		msg += fmt.Sprintf(" (address=%s)", e.Address)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// IsConsistencyError returns true if err is or wraps a *ConsistencyError.
func IsConsistencyError(err error) bool {
	var ce *ConsistencyError
	return errors.As(err, &ce)
}

func missingHeader(op string, addr ir.Address) *ConsistencyError {
	return &ConsistencyError{Op: op, Address: addr, Message: "linked header missing from store"}
}

package action

import "github.com/roach88/sourcechain/internal/ir"

// Response is the result of reducing one wrapped action. It is stored in
// process state under ActionID until the dispatching observer consumes it.
//
// Which fields are set depends on Kind:
//   - commit: Address (entry address) and Header
//   - get_entry: Found and, when found, Entry
//   - add_link: Address (the target)
//   - get_links: Links (never nil)
//
// Err carries action-level failures; the other fields are then zero.
type Response struct {
	ActionID string
	Kind     Kind
	Address  ir.Address
	Header   *ir.ChainHeader
	Entry    *ir.Entry
	Found    bool
	Links    []ir.Address
	Err      error
}

// Failed builds an error response for w.
func Failed(w Wrapper, err error) Response {
	return Response{ActionID: w.ID, Kind: w.Action.Kind(), Err: err}
}

package engine

import (
	"slices"

	"github.com/roach88/sourcechain/internal/action"
	"github.com/roach88/sourcechain/internal/ir"
)

// State is the process state owned by the Run loop. Observers read it only
// from inside the loop, through the methods below.
type State struct {
	responses map[string]action.Response
	links     map[string][]ir.Address
}

func newState() *State {
	return &State{
		responses: make(map[string]action.Response),
		links:     make(map[string][]ir.Address),
	}
}

// HasResponse reports whether a response keyed by id is pending.
func (s *State) HasResponse(id string) bool {
	_, ok := s.responses[id]
	return ok
}

// TakeResponse removes and returns the response keyed by id.
func (s *State) TakeResponse(id string) (action.Response, bool) {
	resp, ok := s.responses[id]
	if ok {
		delete(s.responses, id)
	}
	return resp, ok
}

// Links returns a copy of the targets stored under attribute, never nil.
func (s *State) Links(attribute string) []ir.Address {
	targets := s.links[attribute]
	out := make([]ir.Address, len(targets))
	copy(out, targets)
	return out
}

// addLink appends target under attribute unless already present.
func (s *State) addLink(attribute string, target ir.Address) {
	if slices.Contains(s.links[attribute], target) {
		return
	}
	s.links[attribute] = append(s.links[attribute], target)
}

func (s *State) putResponse(resp action.Response) {
	s.responses[resp.ActionID] = resp
}

package engine

// Observer is a predicate plus side effect evaluated against State after
// every reduction. When Ready holds, Fire runs and the observer is removed.
//
// Both functions run on the Run goroutine and must not block.
type Observer struct {
	// ID links the observer to a dispatch so it can be purged by Forget.
	ID    string
	Ready func(*State) bool
	Fire  func(*State)
}

// registry holds observers in registration order.
type registry struct {
	observers []*Observer
}

func (r *registry) add(o *Observer) {
	r.observers = append(r.observers, o)
}

// notify evaluates every observer in registration order against s, firing
// and removing those whose predicate holds. Returns the number fired.
func (r *registry) notify(s *State) int {
	fired := 0
	kept := r.observers[:0]
	for _, o := range r.observers {
		if o.Ready(s) {
			o.Fire(s)
			fired++
			continue
		}
		kept = append(kept, o)
	}
	clear(r.observers[len(kept):])
	r.observers = kept
	return fired
}

// remove drops every observer with the given ID.
func (r *registry) remove(id string) int {
	removed := 0
	kept := r.observers[:0]
	for _, o := range r.observers {
		if o.ID == id {
			removed++
			continue
		}
		kept = append(kept, o)
	}
	clear(r.observers[len(kept):])
	r.observers = kept
	return removed
}

func (r *registry) len() int {
	return len(r.observers)
}

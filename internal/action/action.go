package action

import (
	"errors"
	"fmt"

	"github.com/roach88/sourcechain/internal/ir"
)

// Kind names an action variant. It appears in canonical wrapper bytes, so
// values must never change.
type Kind string

const (
	KindCommit   Kind = "commit"
	KindGetEntry Kind = "get_entry"
	KindAddLink  Kind = "add_link"
	KindGetLinks Kind = "get_links"
)

// ErrEmptyTag is returned for link actions without a tag.
var ErrEmptyTag = errors.New("link tag must not be empty")

// Action is a command applied by the reducer loop.
// The set of implementations is closed.
type Action interface {
	Kind() Kind
	// Payload returns the canonical representation of the action arguments.
	Payload() ir.IRObject
	// Validate checks the arguments before dispatch.
	Validate() error
	isAction()
}

// Commit appends an entry to the source chain.
type Commit struct {
	Entry ir.Entry
}

func (Commit) Kind() Kind { return KindCommit }

func (a Commit) Payload() ir.IRObject {
	return ir.IRObject{
		"entry": ir.IRObject{
			"content":    ir.IRString(a.Entry.Content),
			"entry_type": ir.IRString(a.Entry.EntryType),
		},
	}
}

func (a Commit) Validate() error { return a.Entry.Validate() }

func (Commit) isAction() {}

// GetEntry looks up an entry by address.
type GetEntry struct {
	Address ir.Address
}

func (GetEntry) Kind() Kind { return KindGetEntry }

func (a GetEntry) Payload() ir.IRObject {
	return ir.IRObject{"address": ir.IRString(a.Address)}
}

func (a GetEntry) Validate() error {
	if a.Address.IsZero() {
		return fmt.Errorf("get_entry: address must not be empty")
	}
	return nil
}

func (GetEntry) isAction() {}

// AddLink records Target under the (Base, Tag) attribute.
type AddLink struct {
	Base   ir.Address
	Target ir.Address
	Tag    string
}

func (AddLink) Kind() Kind { return KindAddLink }

func (a AddLink) Payload() ir.IRObject {
	return ir.IRObject{
		"base":   ir.IRString(a.Base),
		"target": ir.IRString(a.Target),
		"tag":    ir.IRString(a.Tag),
	}
}

func (a AddLink) Validate() error {
	if a.Base.IsZero() || a.Target.IsZero() {
		return fmt.Errorf("add_link: base and target must not be empty")
	}
	if a.Tag == "" {
		return fmt.Errorf("add_link: %w", ErrEmptyTag)
	}
	return nil
}

// Attribute returns the process-state key the link is stored under.
func (a AddLink) Attribute() string { return LinkAttribute(a.Base, a.Tag) }

func (AddLink) isAction() {}

// GetLinks lists the targets recorded under (Base, Tag).
type GetLinks struct {
	Base ir.Address
	Tag  string
}

func (GetLinks) Kind() Kind { return KindGetLinks }

func (a GetLinks) Payload() ir.IRObject {
	return ir.IRObject{
		"base": ir.IRString(a.Base),
		"tag":  ir.IRString(a.Tag),
	}
}

func (a GetLinks) Validate() error {
	if a.Base.IsZero() {
		return fmt.Errorf("get_links: base must not be empty")
	}
	if a.Tag == "" {
		return fmt.Errorf("get_links: %w", ErrEmptyTag)
	}
	return nil
}

// Attribute returns the process-state key the links are stored under.
func (a GetLinks) Attribute() string { return LinkAttribute(a.Base, a.Tag) }

func (GetLinks) isAction() {}

// LinkAttribute formats the link key for a base address and tag.
func LinkAttribute(base ir.Address, tag string) string {
	return "link:" + string(base) + ":" + tag
}

package store

import (
	"fmt"
)

// Registry is an explicitly owned collection of mailboxes, typically held by
// a session or account layer. It supports lookup by canonical path (duplicate
// detection) and by description, and announces additions and removals on its
// own notifier. There is deliberately no process-wide registry, tests and
// independent sessions construct their own.
type Registry struct {
	mailboxes []*Mailbox // In order of addition.

	// Subscribers get EventAdded and EventRemoved.
	Events *Notifier
}

func NewRegistry() *Registry {
	return &Registry{Events: NewNotifier()}
}

// Add adds a mailbox. A mailbox with the same canonical path must not already
// be present.
func (r *Registry) Add(mb *Mailbox) error {
	if mb == nil {
		return fmt.Errorf("adding nil mailbox")
	}
	if r.FindPath(mb.Path) != nil {
		return fmt.Errorf("adding mailbox %s: %w", mb.Path, ErrMailboxExists)
	}
	r.mailboxes = append(r.mailboxes, mb)
	r.Events.Notify(Event{mb, EventAdded})
	return nil
}

// Remove removes a mailbox, telling subscribers just before it goes.
func (r *Registry) Remove(mb *Mailbox) error {
	for i, x := range r.mailboxes {
		if x == mb {
			r.Events.Notify(Event{mb, EventRemoved})
			r.mailboxes = append(r.mailboxes[:i], r.mailboxes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("removing mailbox %s: %w", mb.Path, ErrNotFound)
}

// FindPath returns the mailbox with the given canonical path, or nil.
func (r *Registry) FindPath(path string) *Mailbox {
	for _, mb := range r.mailboxes {
		if mb.Path == path {
			return mb
		}
	}
	return nil
}

// FindDescription returns the first mailbox with the given description, or
// nil.
func (r *Registry) FindDescription(desc string) *Mailbox {
	for _, mb := range r.mailboxes {
		if mb.Description == desc {
			return mb
		}
	}
	return nil
}

// All returns the mailboxes in order of addition. The returned slice is a
// copy, the caller may keep it across mutations.
func (r *Registry) All() []*Mailbox {
	l := make([]*Mailbox, len(r.mailboxes))
	copy(l, r.mailboxes)
	return l
}

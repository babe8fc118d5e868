package store

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	var added, removed []*Mailbox
	r.Events.Subscribe(func(ev Event) {
		switch ev.Kind {
		case EventAdded:
			added = append(added, ev.Mailbox)
		case EventRemoved:
			removed = append(removed, ev.Mailbox)
		}
	})

	inbox := NewMailbox("/home/user/mail/inbox", "inbox", TypeMaildir)
	work := NewMailbox("/home/user/mail/work", "work", TypeMbox)
	err := r.Add(inbox)
	tcheck(t, err, "add inbox")
	err = r.Add(work)
	tcheck(t, err, "add work")
	tcompare(t, len(added), 2, "added events")

	dup := NewMailbox("/home/user/mail/inbox", "other", TypeMbox)
	if err := r.Add(dup); !errors.Is(err, ErrMailboxExists) {
		t.Fatalf("adding duplicate path: got %v, expected ErrMailboxExists", err)
	}

	if mb := r.FindPath("/home/user/mail/work"); mb != work {
		t.Fatalf("find by path: got %v", mb)
	}
	if mb := r.FindDescription("inbox"); mb != inbox {
		t.Fatalf("find by description: got %v", mb)
	}
	if mb := r.FindPath("/nonexistent"); mb != nil {
		t.Fatalf("find of unknown path: got %v", mb)
	}

	l := r.All()
	tcompare(t, len(l), 2, "all mailboxes")
	tcompare(t, l[0], inbox, "addition order")

	err = r.Remove(inbox)
	tcheck(t, err, "remove inbox")
	tcompare(t, len(removed), 1, "removed events")
	if mb := r.FindPath("/home/user/mail/inbox"); mb != nil {
		t.Fatalf("removed mailbox still found")
	}
	if err := r.Remove(inbox); !errors.Is(err, ErrNotFound) {
		t.Fatalf("removing absent mailbox: got %v, expected ErrNotFound", err)
	}

	// Registries are independent, no ambient global state.
	r2 := NewRegistry()
	if mb := r2.FindPath("/home/user/mail/work"); mb != nil {
		t.Fatalf("mailbox from other registry found")
	}
}

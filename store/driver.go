package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mjl-/mstore/metrics"
	"github.com/mjl-/mstore/mlog"
)

// MailboxType identifies the physical format backing a mailbox, and thereby
// the driver that owns it. The tag allows fast format tests without dynamic
// type checks, but callers should express capability questions through the
// rights mask, not through type tests.
type MailboxType int

const (
	TypeAny     MailboxType = -2 // Match any type, e.g. in configuration.
	TypeError   MailboxType = -1 // Error occurred examining the mailbox.
	TypeUnknown MailboxType = 0  // Format not recognised.

	TypeMbox MailboxType = iota - 2 // Flat append-only file, "From "-separated.
	TypeMMDF                        // Flat file, \x01\x01\x01\x01-separated.
	TypeMH                          // Per-message-file directory, numeric names.
	TypeMaildir                     // Per-message-file directory with cur/new/tmp.
	TypeNNTP                        // Remote news protocol.
	TypeIMAP                        // Remote mail protocol.
	TypeNotmuch                     // Virtual, notmuch database.
	TypePOP                         // Remote mail protocol.
	TypeCompressed                  // Compressed container around another format.
	TypeMem                         // In-memory, no persistent storage.
	TypeBolt                        // Local database file.
)

var mailboxTypeStrings = map[MailboxType]string{
	TypeAny:        "any",
	TypeError:      "error",
	TypeUnknown:    "unknown",
	TypeMbox:       "mbox",
	TypeMMDF:       "mmdf",
	TypeMH:         "mh",
	TypeMaildir:    "maildir",
	TypeNNTP:       "nntp",
	TypeIMAP:       "imap",
	TypeNotmuch:    "notmuch",
	TypePOP:        "pop",
	TypeCompressed: "compressed",
	TypeMem:        "mem",
	TypeBolt:       "bolt",
}

func (t MailboxType) String() string {
	if s, ok := mailboxTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("(unknown mailbox type %d)", int(t))
}

// ParseMailboxType parses a type name as used in configuration files.
func ParseMailboxType(s string) (MailboxType, error) {
	for t, name := range mailboxTypeStrings {
		if name == s {
			return t, nil
		}
	}
	return TypeError, fmt.Errorf("unknown mailbox type %q", s)
}

// ChangeKind is a driver's answer to a check for changes in the underlying
// storage.
type ChangeKind int

const (
	ChangeNone     ChangeKind = iota // Nothing happened.
	ChangeNewMail                    // New messages arrived.
	ChangeFlags                      // Flags of existing messages changed.
	ChangeReopened                   // Storage was rewritten, records are stale.
)

var changeKindStrings = map[ChangeKind]string{
	ChangeNone:     "none",
	ChangeNewMail:  "newmail",
	ChangeFlags:    "flags",
	ChangeReopened: "reopened",
}

func (k ChangeKind) String() string {
	if s, ok := changeKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("(unknown change kind %d)", int(k))
}

// Driver is the operations contract each physical mailbox format implements.
// A driver instance is bound to one mailbox and owns whatever private state
// it needs, the store never inspects it. Open populates the mailbox records.
// Close must be callable on an un- or half-initialized driver, e.g. after a
// failed Open, and releases the driver's state.
type Driver interface {
	Open(ctx context.Context, mb *Mailbox) error
	Check(ctx context.Context, mb *Mailbox) (ChangeKind, error)
	Sync(ctx context.Context, mb *Mailbox) error
	Close(ctx context.Context, mb *Mailbox) error
}

// Attach binds a driver to the mailbox. A mailbox is bound to exactly one
// driver for its open lifetime.
func (mb *Mailbox) Attach(drv Driver) error {
	if drv == nil {
		return fmt.Errorf("attach to mailbox %s: nil driver", mb.Path)
	}
	if mb.attached {
		return fmt.Errorf("attach to mailbox %s: driver already attached: %w", mb.Path, ErrInconsistentState)
	}
	mb.driver = drv
	mb.attached = true
	return nil
}

// Attached returns whether a driver is currently bound.
func (mb *Mailbox) Attached() bool {
	return mb.attached
}

// Open opens the mailbox, populating it through the driver on the first of
// nested opens and building the initial virtual view over all populated
// records. If the driver's open fails, its state is released and the mailbox
// emptied before the error is returned, wrapped in ErrBackend.
func (mb *Mailbox) Open(ctx context.Context) error {
	if !mb.attached {
		return fmt.Errorf("open mailbox %s: %w", mb.Path, ErrNoDriver)
	}
	if mb.Opened > 0 {
		mb.Opened++
		return nil
	}

	// The rights mask gates caller mutations, not population by the backend.
	// Lift it while the driver fills the record store.
	rights := mb.Rights
	mb.Rights = RightsAll
	err := mb.driver.Open(ctx, mb)
	mb.Rights = rights
	if err == nil {
		err = mb.RebuildView(nil, nil)
	}
	if err != nil {
		// Release partially initialized driver state. Close must handle a
		// half-open driver. Drop whatever records the driver managed to add,
		// a later attach and open must not see them again.
		xerr := mb.driver.Close(ctx, mb)
		xlog.Check(xerr, "closing driver after failed open", mlog.Field("path", mb.Path))
		mb.driver = nil
		mb.attached = false
		mb.dropRecords()
		metrics.MailboxOpInc("open", "error")
		return fmt.Errorf("open mailbox %s: %v: %w", mb.Path, err, ErrBackend)
	}
	mb.Opened = 1
	metrics.MailboxOpInc("open", "ok")
	return nil
}

// Close closes one nested open. The last close syncs pending changes (unless
// the mailbox is read-only or marked don't-write), releases the driver
// exactly once, tells listeners the mailbox closed and drops the in-memory
// records. Calling Close on an already-closed mailbox is a no-op.
func (mb *Mailbox) Close(ctx context.Context) error {
	if mb.Opened == 0 {
		return nil
	}
	mb.Opened--
	if mb.Opened > 0 {
		return nil
	}

	var rerr error
	if mb.Changed && !mb.ReadOnly && !mb.DontWrite {
		if err := mb.driver.Sync(ctx, mb); err != nil {
			rerr = fmt.Errorf("sync on close of mailbox %s: %v: %w", mb.Path, err, ErrBackend)
		} else {
			mb.Changed = false
		}
	}

	err := mb.driver.Close(ctx, mb)
	mb.driver = nil
	mb.attached = false
	if err != nil && rerr == nil {
		rerr = fmt.Errorf("close mailbox %s: %v: %w", mb.Path, err, ErrBackend)
	}
	mb.LastVisited = time.Now()
	if rerr != nil {
		metrics.MailboxOpInc("close", "error")
	} else {
		metrics.MailboxOpInc("close", "ok")
	}
	mb.notify(EventClosed)
	mb.dropRecords()
	return rerr
}

// dropRecords drops the record store and everything derived from it. A
// future open repopulates from the driver.
func (mb *Mailbox) dropRecords() {
	mb.records = nil
	mb.v2r = []int{}
	mb.byMessageID = index{}
	mb.bySubject = index{}
	mb.byLabel = index{}
	mb.needRebuild = false
	mb.recomputeStats()
}

// Check asks the driver whether the underlying storage changed. It does not
// require the mailbox to be open, periodic new-mail polling runs against
// closed mailboxes too. The driver's I/O may block, callers needing timeouts
// must arrange them through ctx.
func (mb *Mailbox) Check(ctx context.Context) (ChangeKind, error) {
	if !mb.attached {
		return ChangeNone, fmt.Errorf("check mailbox %s: %w", mb.Path, ErrNoDriver)
	}
	kind, err := mb.driver.Check(ctx, mb)
	if err != nil {
		metrics.MailboxOpInc("check", "error")
		return ChangeNone, fmt.Errorf("check mailbox %s: %v: %w", mb.Path, err, ErrBackend)
	}
	metrics.MailboxOpInc("check", "ok")
	if kind == ChangeNewMail {
		mb.HasNew = true
		mb.Notified = false
	}
	return kind, nil
}

// Sync commits pending changes to the underlying storage through the driver.
func (mb *Mailbox) Sync(ctx context.Context) error {
	if !mb.attached {
		return fmt.Errorf("sync mailbox %s: %w", mb.Path, ErrNoDriver)
	}
	if mb.Opened == 0 {
		return fmt.Errorf("sync mailbox %s: not open: %w", mb.Path, ErrNotFound)
	}
	if mb.ReadOnly {
		return fmt.Errorf("sync mailbox %s: read-only: %w", mb.Path, ErrPermission)
	}
	if err := mb.driver.Sync(ctx, mb); err != nil {
		metrics.MailboxOpInc("sync", "error")
		return fmt.Errorf("sync mailbox %s: %v: %w", mb.Path, err, ErrBackend)
	}
	metrics.MailboxOpInc("sync", "ok")
	mb.Changed = false
	return nil
}

// Package memstore is the in-memory mailbox driver: records live only in the
// driver, there is no persistent storage. Useful as the reference driver, in
// tests, and for virtual mailboxes assembled at runtime.
package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/mjl-/mstore/store"
)

// Driver holds the backing records for one mailbox. Deliver adds records
// behind the mailbox's back, a subsequent Check reports new mail and Resync
// folds them in, mimicking how mail shows up in a watched mailbox file.
type Driver struct {
	records []store.Record // Backing store, copied into the mailbox on open.

	open      bool
	delivered int // Records beyond what the mailbox has seen.
}

// New returns a driver with initial records.
func New(records ...store.Record) *Driver {
	return &Driver{records: records}
}

// Deliver adds a record to the backing store, to be picked up by a future
// check.
func (d *Driver) Deliver(rec store.Record) {
	d.records = append(d.records, rec)
	d.delivered++
}

// Open populates the mailbox from the backing records.
func (d *Driver) Open(ctx context.Context, mb *store.Mailbox) error {
	if d.open {
		return fmt.Errorf("already open")
	}
	if len(d.records) == 0 {
		mb.NewlyCreated = true
	}
	if err := d.populate(mb, d.records); err != nil {
		return err
	}
	d.open = true
	d.delivered = 0
	mb.Mtime = time.Now()
	mb.Changed = false
	return nil
}

func (d *Driver) populate(mb *store.Mailbox, records []store.Record) error {
	// Population is not a user-visible mutation: keep listeners quiet, and
	// don't let the caller-facing rights mask block it. Resync runs outside
	// the open path, where the store does not lift the mask for us.
	quiet, rights := mb.Quiet, mb.Rights
	mb.Quiet = true
	mb.Rights = store.RightsAll
	defer func() {
		mb.Quiet, mb.Rights = quiet, rights
	}()
	for i := range records {
		rec := records[i]
		if _, err := mb.AppendRecord(&rec); err != nil {
			return fmt.Errorf("populating: %v", err)
		}
	}
	return nil
}

// Check reports new mail delivered since open or the last resync.
func (d *Driver) Check(ctx context.Context, mb *store.Mailbox) (store.ChangeKind, error) {
	if d.delivered > 0 {
		return store.ChangeNewMail, nil
	}
	return store.ChangeNone, nil
}

// Resync appends records delivered since open to the mailbox.
func (d *Driver) Resync(mb *store.Mailbox) error {
	if !d.open {
		return fmt.Errorf("resync: not open")
	}
	if d.delivered == 0 {
		return nil
	}
	if err := d.populate(mb, d.records[len(d.records)-d.delivered:]); err != nil {
		return err
	}
	d.delivered = 0
	mb.Mtime = time.Now()
	return nil
}

// Sync commits the mailbox's current records back to the backing store.
func (d *Driver) Sync(ctx context.Context, mb *store.Mailbox) error {
	if !d.open {
		return fmt.Errorf("sync: not open")
	}
	records := make([]store.Record, 0, mb.RealCount())
	for n := 0; n < mb.RealCount(); n++ {
		rec, err := mb.RecordAt(n)
		if err != nil {
			return fmt.Errorf("sync: %v", err)
		}
		records = append(records, *rec)
	}
	d.records = records
	d.delivered = 0
	mb.Mtime = time.Now()
	return nil
}

// Close releases the driver. Safe to call on a never- or half-opened driver.
func (d *Driver) Close(ctx context.Context, mb *store.Mailbox) error {
	d.open = false
	return nil
}

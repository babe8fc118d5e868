// Package boltstore is the database-file mailbox driver. Records are kept in
// a single bstore (BoltDB) database file per mailbox, the mailbox path is the
// path of that file. Message content is out of scope, only the summary
// records the store tracks are persisted.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mjl-/bstore"

	"github.com/mjl-/mstore/store"
)

// Msg is a message summary record as stored in the database.
type Msg struct {
	ID        int64
	MessageID string `bstore:"index"`
	Subject   string
	Label     string
	store.Flags
	Size     int64
	Received time.Time `bstore:"default now"`
}

// DBTypes are the types stored in the database.
var DBTypes = []any{Msg{}}

// Driver is the database-file driver for one mailbox.
type Driver struct {
	db *bstore.DB
}

func New() *Driver {
	return &Driver{}
}

// Open opens (creating if missing) the database file at the mailbox path and
// populates the mailbox with its records.
func (d *Driver) Open(ctx context.Context, mb *store.Mailbox) error {
	if d.db != nil {
		return fmt.Errorf("already open")
	}

	isNew := false
	if _, err := os.Stat(mb.Path); err != nil && os.IsNotExist(err) {
		isNew = true
	}

	db, err := bstore.Open(ctx, mb.Path, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, DBTypes...)
	if err != nil {
		return err
	}
	d.db = db
	mb.NewlyCreated = isNew

	msgs, err := bstore.QueryDB[Msg](ctx, db).SortAsc("ID").List()
	if err != nil {
		return fmt.Errorf("listing messages: %v", err)
	}

	quiet := mb.Quiet
	mb.Quiet = true
	defer func() {
		mb.Quiet = quiet
	}()
	for _, m := range msgs {
		rec := &store.Record{
			MessageID: m.MessageID,
			Subject:   m.Subject,
			Label:     m.Label,
			Flags:     m.Flags,
			Size:      m.Size,
			Received:  m.Received,
			Private:   m.ID,
		}
		if _, err := mb.AppendRecord(rec); err != nil {
			return fmt.Errorf("populating: %v", err)
		}
	}
	mb.Changed = false

	if st, err := os.Stat(mb.Path); err == nil {
		mb.Mtime = st.ModTime()
	}
	return nil
}

// Check compares the database against the mailbox: more records in the
// database than in memory means new mail, a newer file modification time
// alone means changed flags.
func (d *Driver) Check(ctx context.Context, mb *store.Mailbox) (store.ChangeKind, error) {
	db := d.db
	if db == nil {
		// Mailbox is not open, e.g. periodic new-mail polling. Open the
		// database just for this check.
		xdb, err := bstore.Open(ctx, mb.Path, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, DBTypes...)
		if err != nil {
			return store.ChangeNone, err
		}
		defer xdb.Close()
		db = xdb
	}

	n, err := bstore.QueryDB[Msg](ctx, db).Count()
	if err != nil {
		return store.ChangeNone, fmt.Errorf("counting messages: %v", err)
	}
	if n > mb.RealCount() {
		return store.ChangeNewMail, nil
	}

	st, err := os.Stat(mb.Path)
	if err != nil {
		return store.ChangeNone, err
	}
	if st.ModTime().After(mb.Mtime) {
		return store.ChangeFlags, nil
	}
	return store.ChangeNone, nil
}

// Sync writes the mailbox's current records to the database: updating
// existing records, inserting new ones, and removing database records no
// longer present in the mailbox (e.g. after a purge).
func (d *Driver) Sync(ctx context.Context, mb *store.Mailbox) error {
	if d.db == nil {
		return fmt.Errorf("not open")
	}

	err := d.db.Write(ctx, func(tx *bstore.Tx) error {
		keep := map[int64]bool{}
		for n := 0; n < mb.RealCount(); n++ {
			rec, err := mb.RecordAt(n)
			if err != nil {
				return err
			}
			m := Msg{
				MessageID: rec.MessageID,
				Subject:   rec.Subject,
				Label:     rec.Label,
				Flags:     rec.Flags,
				Size:      rec.Size,
				Received:  rec.Received,
			}
			if id, ok := rec.Private.(int64); ok {
				m.ID = id
				if err := tx.Update(&m); err != nil {
					return fmt.Errorf("updating message %d: %v", id, err)
				}
			} else {
				if err := tx.Insert(&m); err != nil {
					return fmt.Errorf("inserting message: %v", err)
				}
				rec.Private = m.ID
			}
			keep[m.ID] = true
		}

		q := bstore.QueryTx[Msg](tx)
		q.FilterFn(func(m Msg) bool {
			return !keep[m.ID]
		})
		if _, err := q.Delete(); err != nil {
			return fmt.Errorf("removing purged messages: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if st, err := os.Stat(mb.Path); err == nil {
		mb.Mtime = st.ModTime()
	}
	return nil
}

// Close releases the database. Safe to call on a never- or half-opened
// driver, and never closes twice.
func (d *Driver) Close(ctx context.Context, mb *store.Mailbox) error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

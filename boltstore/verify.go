package boltstore

import (
	"context"
	"fmt"

	"github.com/mjl-/bstore"
	bolt "go.etcd.io/bbolt"
)

// Verify checks a mailbox database file by opening it with BoltDB and bstore
// and lightly checking its contents. It returns the number of message records
// found.
func Verify(ctx context.Context, path string) (int, error) {
	bdb, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return 0, fmt.Errorf("open database with bolt: %v", err)
	}
	err = bdb.View(func(tx *bolt.Tx) error {
		// Drain the channel, the checker goroutine blocks on sending
		// further problems.
		var checkErr error
		for err := range tx.Check() {
			if checkErr == nil {
				checkErr = fmt.Errorf("bolt database problem: %v", err)
			}
		}
		return checkErr
	})
	if xerr := bdb.Close(); err == nil && xerr != nil {
		err = fmt.Errorf("closing database: %v", xerr)
	}
	if err != nil {
		return 0, err
	}

	db, err := bstore.Open(ctx, path, nil, DBTypes...)
	if err != nil {
		return 0, fmt.Errorf("open database with bstore: %v", err)
	}
	defer db.Close()

	// Have bstore parse all records, a quick way to catch malformed data.
	n := 0
	err = db.Read(ctx, func(tx *bstore.Tx) error {
		return bstore.QueryTx[Msg](tx).ForEach(func(m Msg) error {
			n++
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("reading messages: %v", err)
	}
	return n, nil
}

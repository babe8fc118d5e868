package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Marker files whose presence makes a directory an MH mailbox. The first is
// MH proper, the rest are left by MH-alike mail clients.
var mhMarkers = []string{".mh_sequences", ".xmhcache", ".mew_cache", ".mew-cache", ".sylpheed_cache", ".overview"}

// DetectType probes a path for a known local mailbox format: a directory with
// cur/new/tmp is a maildir, a directory with an MH marker file (e.g.
// .mh_sequences) is MH, a file starting with "From " is mbox and one starting
// with four ^A bytes is MMDF. An unrecognized directory or an empty file is
// TypeUnknown without error, a missing path is an error. Remote and database
// formats cannot be detected from a path.
func DetectType(path string) (MailboxType, error) {
	st, err := os.Stat(path)
	if err != nil {
		return TypeError, fmt.Errorf("probing mailbox %s: %w", path, err)
	}

	if st.IsDir() {
		maildir := true
		for _, sub := range []string{"cur", "new", "tmp"} {
			if sst, err := os.Stat(filepath.Join(path, sub)); err != nil || !sst.IsDir() {
				maildir = false
				break
			}
		}
		if maildir {
			return TypeMaildir, nil
		}
		for _, marker := range mhMarkers {
			if _, err := os.Stat(filepath.Join(path, marker)); err == nil {
				return TypeMH, nil
			}
		}
		return TypeUnknown, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return TypeError, fmt.Errorf("probing mailbox %s: %w", path, err)
	}
	defer f.Close()

	magic := make([]byte, 5)
	n, _ := io.ReadFull(f, magic)
	if n == 0 {
		// Empty file, could become any flat-file format.
		return TypeUnknown, nil
	}
	magic = magic[:n]
	if bytes.HasPrefix(magic, []byte("From ")) {
		return TypeMbox, nil
	}
	if bytes.HasPrefix(magic, []byte{1, 1, 1, 1}) {
		return TypeMMDF, nil
	}
	return TypeUnknown, nil
}

// Package config holds the configuration file format: which mailboxes exist,
// how they may be accessed and which operations need confirmation.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/mjl-/sconf"

	"github.com/mjl-/mstore/store"
)

// Static is the parsed form of the mstore.conf configuration file.
type Static struct {
	LogLevel         string            `sconf:"optional" sconf-doc:"NOTE: This config file is in 'sconf' format. Indent with tabs. Comments must be on their own line, they don't end a line. Do not escape or quote strings. Details: https://pkg.go.dev/github.com/mjl-/sconf.\n\n\nDefault log level, one of: error, info, debug. Default: error."`
	PackageLogLevels map[string]string `sconf:"optional" sconf-doc:"Overrides of log level per package (e.g. store, boltstore, memstore)."`

	Confirm struct {
		Delete string `sconf:"optional" sconf-doc:"Confirmation for marking messages deleted: no, yes, ask-no or ask-yes. Default: ask-yes."`
		Purge  string `sconf:"optional" sconf-doc:"Confirmation for purging deleted messages on close: no, yes, ask-no or ask-yes. Default: ask-yes."`
		Locked bool   `sconf:"optional" sconf-doc:"If set, the confirmation settings above are fixed and cannot be toggled interactively."`

		DeleteQuad store.QuadPolicy `sconf:"-" json:"-"` // Parsed form of Delete.
		PurgeQuad  store.QuadPolicy `sconf:"-" json:"-"` // Parsed form of Purge.
	} `sconf:"optional" sconf-doc:"Confirmation policies for destructive operations."`

	Mailboxes []Mailbox `sconf-doc:"Mailboxes to watch and open."`
}

// Mailbox is one configured mailbox.
type Mailbox struct {
	Path        string `sconf-doc:"Path of the mailbox: a file (mbox/mmdf/database) or directory (maildir/mh)."`
	Description string `sconf:"optional" sconf-doc:"Short display name, e.g. work."`
	Type        string `sconf:"optional" sconf-doc:"Mailbox format, e.g. mbox, mmdf, mh, maildir, mem or bolt. If empty, the format is detected from the path."`
	ReadOnly    bool   `sconf:"optional" sconf-doc:"Open the mailbox read-only, refusing changes."`
	Rights      string `sconf:"optional" sconf-doc:"Granted rights as RFC 4314-style letters, e.g. lrs for lookup/read/seen. If empty, all rights are granted."`

	ParsedType   store.MailboxType `sconf:"-" json:"-"`
	ParsedRights store.Rights      `sconf:"-" json:"-"`
}

// Load reads and validates a configuration file, filling in the parsed fields
// and defaults.
func Load(path string) (Static, error) {
	var c Static
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("open config file: %v", err)
	}
	defer f.Close()
	if err := sconf.Parse(f, &c); err != nil {
		return c, fmt.Errorf("parsing %s: %v", path, err)
	}
	if err := c.Prepare(); err != nil {
		return c, fmt.Errorf("checking %s: %v", path, err)
	}
	return c, nil
}

// Prepare validates the configuration and fills in parsed fields and
// defaults.
func (c *Static) Prepare() error {
	if c.LogLevel == "" {
		c.LogLevel = "error"
	}

	quad := func(what, s string) (store.QuadPolicy, error) {
		if s == "" {
			s = "ask-yes"
		}
		q, err := store.ParseQuad(s)
		if err != nil {
			return store.QuadPolicy{}, fmt.Errorf("confirm %s: %v", what, err)
		}
		return store.QuadPolicy{Value: q, Locked: c.Confirm.Locked}, nil
	}
	var err error
	if c.Confirm.DeleteQuad, err = quad("delete", c.Confirm.Delete); err != nil {
		return err
	}
	if c.Confirm.PurgeQuad, err = quad("purge", c.Confirm.Purge); err != nil {
		return err
	}

	paths := map[string]bool{}
	for i := range c.Mailboxes {
		mb := &c.Mailboxes[i]
		if mb.Path == "" {
			return fmt.Errorf("mailbox without path")
		}
		if paths[mb.Path] {
			return fmt.Errorf("duplicate mailbox path %s", mb.Path)
		}
		paths[mb.Path] = true

		mb.ParsedType = store.TypeAny
		if mb.Type != "" {
			t, err := store.ParseMailboxType(mb.Type)
			if err != nil {
				return fmt.Errorf("mailbox %s: %v", mb.Path, err)
			}
			mb.ParsedType = t
		}

		mb.ParsedRights = store.RightsAll
		if mb.Rights != "" {
			r, err := store.ParseRights(mb.Rights)
			if err != nil {
				return fmt.Errorf("mailbox %s: %v", mb.Path, err)
			}
			mb.ParsedRights = r
		}
		if mb.ReadOnly {
			mb.ParsedRights = mb.ParsedRights.Revoke(store.RightInsert | store.RightDeleteMsg | store.RightExpunge | store.RightWrite)
		}
	}
	return nil
}

// Describe writes an annotated example configuration file.
func Describe(w io.Writer) error {
	c := Static{
		LogLevel: "error",
		Mailboxes: []Mailbox{
			{
				Path:        "/home/user/mail/inbox.db",
				Description: "inbox",
				Type:        "bolt",
			},
		},
	}
	return sconf.Describe(w, &c)
}

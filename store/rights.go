package store

import (
	"fmt"
	"strings"
)

// Rights is a bit-flag capability set describing what the backend/account
// permits on a mailbox. Each bit independently grants one capability.
type Rights uint16

const (
	RightAdmin         Rights = 1 << iota // Administer, get/set permissions.
	RightCreate                           // Create a mailbox.
	RightDeleteMsg                        // Mark messages deleted.
	RightDeleteMailbox                    // Delete the mailbox itself.
	RightExpunge                          // Purge deleted messages.
	RightInsert                           // Add/copy messages into the mailbox.
	RightLookup                           // Mailbox is visible to listing.
	RightPost                             // Submit messages to the mailbox's posting address.
	RightRead                             // Read the mailbox.
	RightSeen                             // Change the seen status of a message.
	RightWrite                            // Change other message flags.

	RightsNone Rights = 0
	RightsAll  Rights = 1<<11 - 1
)

// Letters per right, RFC 4314 scheme, in bit order.
var rightLetters = []struct {
	right  Rights
	letter byte
}{
	{RightAdmin, 'a'},
	{RightCreate, 'k'},
	{RightDeleteMsg, 't'},
	{RightDeleteMailbox, 'x'},
	{RightExpunge, 'e'},
	{RightInsert, 'i'},
	{RightLookup, 'l'},
	{RightPost, 'p'},
	{RightRead, 'r'},
	{RightSeen, 's'},
	{RightWrite, 'w'},
}

// Has returns whether all capabilities in mask are granted.
func (r Rights) Has(mask Rights) bool {
	return r&mask == mask
}

// Grant returns r with the capabilities in mask added.
func (r Rights) Grant(mask Rights) Rights {
	return r | mask
}

// Revoke returns r with the capabilities in mask removed.
func (r Rights) Revoke(mask Rights) Rights {
	return r &^ mask
}

// String returns the granted rights as RFC 4314-style letters, e.g. "rsti".
func (r Rights) String() string {
	var b strings.Builder
	for _, rl := range rightLetters {
		if r.Has(rl.right) {
			b.WriteByte(rl.letter)
		}
	}
	return b.String()
}

// ParseRights parses a string of rights letters as used in configuration,
// e.g. "lrs". Unknown letters are an error.
func ParseRights(s string) (Rights, error) {
	var r Rights
	for i := 0; i < len(s); i++ {
		var found bool
		for _, rl := range rightLetters {
			if rl.letter == s[i] {
				r = r.Grant(rl.right)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown right %q", s[i:i+1])
		}
	}
	return r, nil
}

/*
Package store implements the in-memory representation of a mailbox: an owning
array of message records with a derived virtual view (the ordered, filtered
subset clients iterate), cross-reference indices for duplicate detection and
threading, counters, access rights, and change notifications to interested
listeners (e.g. a display layer).

A mailbox is backed by exactly one driver, a concrete implementation of the
Driver interface for a physical format (flat file, per-message-file directory,
database, remote protocol). The store never interprets driver state, it only
calls the driver's operations and releases the driver exactly once on final
close.

A mailbox is not internally synchronized. Callers must serialize mutating
operations against a mailbox, e.g. by holding a mailbox-level lock for the
duration of a mutating call. Read-only operations may run concurrently with
each other, not with a mutation.
*/
package store

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slices"

	"github.com/mjl-/mstore/message"
	"github.com/mjl-/mstore/metrics"
	"github.com/mjl-/mstore/mlog"
)

var xlog = mlog.New("store")

var (
	ErrNotFound          = errors.New("not found")
	ErrPermission        = errors.New("permission denied")
	ErrBackend           = errors.New("backend failure")
	ErrInconsistentState = errors.New("inconsistent state, full rebuild required")
	ErrImmutablePolicy   = errors.New("setting is fixed by policy")
	ErrMailboxExists     = errors.New("mailbox already present")
	ErrNoDriver          = errors.New("no driver attached")
)

// Flags of a mail message.
type Flags struct {
	Seen    bool
	New     bool
	Flagged bool
	Tagged  bool
	Deleted bool
}

// Record is the summary of one message as the store tracks it: enough to
// drive counters and indices without the full parsed message. The message
// content itself is the driver's concern.
type Record struct {
	MessageID string // Raw Message-ID header value, may be empty.
	Subject   string // Q/b-word-decoded subject, may be empty.
	Label     string // X-Label or similar, may be empty.
	Flags
	Size     int64
	Received time.Time

	// Private is for the driver that populated this record, e.g. a storage
	// key. The store never interprets it.
	Private any
}

// Mailbox is the in-memory representation of a single mail store, of any
// physical format.
type Mailbox struct {
	Path        string // Canonical path, used for duplicate detection in a Registry.
	Description string // Short display name, e.g. "work".
	Type        MailboxType
	Size        int64 // Sum of record sizes.

	Append       bool // Opened in append mode.
	Changed      bool // Modified since open or last sync.
	ReadOnly     bool // Changes not allowed.
	PeekOnly     bool // Just taking a glance, drivers should revert access times.
	Quiet        bool // Inhibit change notifications.
	DontWrite    bool // Don't sync on close.
	NewlyCreated bool // Popped into existence on open.
	HasNew       bool // Has new mail.
	Notified     bool // User has been notified of new mail.

	Mtime            time.Time // Last modification of underlying storage.
	LastVisited      time.Time // Time of last close.
	StatsLastChecked time.Time

	// Counters over all records. Only meaningful once StatsDone is set, which
	// happens on the first append or stats recomputation.
	MsgCount   int
	MsgUnread  int
	MsgNew     int
	MsgFlagged int
	MsgDeleted int
	MsgTagged  int
	StatsDone  bool

	// What the backend/account permits on this mailbox. All rights for a newly
	// constructed mailbox, drivers restrict during open.
	Rights Rights

	// Subscribers are told about structural changes, see EventKind.
	Events *Notifier

	Opened int // Number of nested opens. Driver state is released when it reaches 0 again.

	records []*Record
	v2r     []int // Virtual to real: v2r[i] is an index into records.

	byMessageID index
	bySubject   index
	byLabel     index

	// Set when a derived-structure rebuild failed partway. All mutations
	// except a full rebuild are refused until Purge or RebuildView clears it.
	needRebuild bool

	driver   Driver
	attached bool
}

// NewMailbox returns an empty mailbox with all rights and an empty, non-nil
// virtual view. It must be bound to a driver with Attach before Open.
func NewMailbox(path, description string, t MailboxType) *Mailbox {
	return &Mailbox{
		Path:        path,
		Description: description,
		Type:        t,
		Rights:      RightsAll,
		Events:      NewNotifier(),
		v2r:         []int{},
		byMessageID: index{},
		bySubject:   index{},
		byLabel:     index{},
	}
}

// RealCount returns the number of record slots, including records marked
// deleted but not yet purged.
func (mb *Mailbox) RealCount() int {
	return len(mb.records)
}

// VirtualCount returns the number of records in the virtual view.
func (mb *Mailbox) VirtualCount() int {
	return len(mb.v2r)
}

// RecordAt returns the record at real index n.
func (mb *Mailbox) RecordAt(n int) (*Record, error) {
	if n < 0 || n >= len(mb.records) {
		return nil, fmt.Errorf("record %d in mailbox %s: %w", n, mb.Path, ErrNotFound)
	}
	return mb.records[n], nil
}

// ViewRecord returns the record at virtual index i.
func (mb *Mailbox) ViewRecord(i int) (*Record, error) {
	if i < 0 || i >= len(mb.v2r) {
		return nil, fmt.Errorf("virtual index %d in mailbox %s: %w", i, mb.Path, ErrNotFound)
	}
	n := mb.v2r[i]
	if n < 0 || n >= len(mb.records) {
		// Derived state desynced from the slot array. A defect, report loudly.
		mb.needRebuild = true
		return nil, fmt.Errorf("virtual index %d maps to real index %d outside %d slots in mailbox %s: %w", i, n, len(mb.records), mb.Path, ErrInconsistentState)
	}
	return mb.records[n], nil
}

// View returns a copy of the virtual-to-real mapping.
func (mb *Mailbox) View() []int {
	return slices.Clone(mb.v2r)
}

// grow ensures capacity for one more record slot. Growth is amortized, old
// storage is never aliased into the new array.
func (mb *Mailbox) grow() {
	if len(mb.records) < cap(mb.records) {
		return
	}
	n := 2 * cap(mb.records)
	if n == 0 {
		n = 32
	}
	nl := make([]*Record, len(mb.records), n)
	copy(nl, mb.records)
	mb.records = nl
}

// AppendRecord adds a record to the mailbox, updating counters and indices,
// and returns its real index. Existing virtual view entries stay valid, but
// the view does not include the new record until rebuilt; listeners are told
// with a resort event.
func (mb *Mailbox) AppendRecord(rec *Record) (int, error) {
	if !mb.Rights.Has(RightInsert) {
		return -1, fmt.Errorf("append to mailbox %s: %w", mb.Path, ErrPermission)
	}
	if mb.needRebuild {
		return -1, fmt.Errorf("append to mailbox %s: %w", mb.Path, ErrInconsistentState)
	}
	mb.grow()
	n := len(mb.records)
	mb.records = append(mb.records, rec)
	mb.indexRecord(rec, n)
	mb.addStats(rec, 1)
	mb.StatsDone = true
	mb.Changed = true
	if rec.New && !rec.Seen {
		mb.HasNew = true
	}
	mb.notify(EventResort)
	return n, nil
}

// addStats applies a record to the counters with sign 1 or -1.
func (mb *Mailbox) addStats(rec *Record, sign int) {
	mb.MsgCount += sign
	if !rec.Seen {
		mb.MsgUnread += sign
	}
	if rec.New && !rec.Seen {
		mb.MsgNew += sign
	}
	if rec.Flagged {
		mb.MsgFlagged += sign
	}
	if rec.Deleted {
		mb.MsgDeleted += sign
	}
	if rec.Tagged {
		mb.MsgTagged += sign
	}
	mb.Size += int64(sign) * rec.Size
}

// UpdateStats recomputes all counters and the size from the records, marking
// them valid, and tells listeners their tables need updating.
func (mb *Mailbox) UpdateStats() {
	mb.recomputeStats()
	mb.notify(EventUpdate)
}

func (mb *Mailbox) recomputeStats() {
	mb.MsgCount = 0
	mb.MsgUnread = 0
	mb.MsgNew = 0
	mb.MsgFlagged = 0
	mb.MsgDeleted = 0
	mb.MsgTagged = 0
	mb.Size = 0
	for _, rec := range mb.records {
		mb.addStats(rec, 1)
	}
	mb.StatsDone = true
	mb.StatsLastChecked = time.Now()
}

func (mb *Mailbox) mutableRecord(op string, n int, right Rights) (*Record, error) {
	if !mb.Rights.Has(right) {
		return nil, fmt.Errorf("%s in mailbox %s: %w", op, mb.Path, ErrPermission)
	}
	if mb.needRebuild {
		return nil, fmt.Errorf("%s in mailbox %s: %w", op, mb.Path, ErrInconsistentState)
	}
	if n < 0 || n >= len(mb.records) {
		return nil, fmt.Errorf("%s, record %d in mailbox %s: %w", op, n, mb.Path, ErrNotFound)
	}
	return mb.records[n], nil
}

// MarkSeen sets or clears the seen flag of the record at real index n.
// Marking seen also clears the new flag.
func (mb *Mailbox) MarkSeen(n int, seen bool) error {
	rec, err := mb.mutableRecord("mark seen", n, RightSeen)
	if err != nil {
		return err
	}
	if rec.Seen == seen {
		return nil
	}
	mb.addStats(rec, -1)
	rec.Seen = seen
	if seen {
		rec.New = false
	}
	mb.addStats(rec, 1)
	mb.Changed = true
	mb.notify(EventUpdate)
	return nil
}

// MarkFlagged sets or clears the flagged flag of the record at real index n.
func (mb *Mailbox) MarkFlagged(n int, flagged bool) error {
	rec, err := mb.mutableRecord("mark flagged", n, RightWrite)
	if err != nil {
		return err
	}
	if rec.Flagged == flagged {
		return nil
	}
	mb.addStats(rec, -1)
	rec.Flagged = flagged
	mb.addStats(rec, 1)
	mb.Changed = true
	mb.notify(EventUpdate)
	return nil
}

// MarkDeleted sets or clears the deleted flag of the record at real index n.
// Logical deletion only, the record remains in the slot array and in the
// indices until Purge.
func (mb *Mailbox) MarkDeleted(n int, deleted bool) error {
	rec, err := mb.mutableRecord("mark deleted", n, RightDeleteMsg)
	if err != nil {
		return err
	}
	if rec.Deleted == deleted {
		return nil
	}
	mb.addStats(rec, -1)
	rec.Deleted = deleted
	mb.addStats(rec, 1)
	mb.Changed = true
	mb.notify(EventUpdate)
	return nil
}

// SetTagged sets or clears the tagged flag of the record at real index n.
// Tagging is a local selection, not a message mutation, so no rights are
// required and the mailbox is not marked changed.
func (mb *Mailbox) SetTagged(n int, tagged bool) error {
	if n < 0 || n >= len(mb.records) {
		return fmt.Errorf("tag record %d in mailbox %s: %w", n, mb.Path, ErrNotFound)
	}
	rec := mb.records[n]
	if rec.Tagged == tagged {
		return nil
	}
	mb.addStats(rec, -1)
	rec.Tagged = tagged
	mb.addStats(rec, 1)
	return nil
}

// UntagAll clears the tagged flag on all records and tells listeners to
// forget their last-tagged position.
func (mb *Mailbox) UntagAll() {
	for _, rec := range mb.records {
		rec.Tagged = false
	}
	mb.MsgTagged = 0
	mb.notify(EventUntag)
}

// Purge removes records marked deleted, compacts the slot array and rebuilds
// the virtual view (to insertion order over the remaining records) and all
// cross-reference indices in one step. Listeners get a single Invalidated
// event. On partial failure the mailbox is rolled into a state where only a
// full rebuild is accepted, and ErrInconsistentState is returned.
func (mb *Mailbox) Purge() error {
	if !mb.Rights.Has(RightExpunge) {
		return fmt.Errorf("purge mailbox %s: %w", mb.Path, ErrPermission)
	}

	kept := make([]*Record, 0, len(mb.records))
	removed := false
	for _, rec := range mb.records {
		if rec.Deleted {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}

	byID, bySubj, byLabel := buildIndices(kept)
	v2r := make([]int, len(kept))
	for i := range kept {
		v2r[i] = i
	}

	if err := checkDerived(kept, v2r, byID, bySubj, byLabel); err != nil {
		mb.needRebuild = true
		metrics.MailboxOpInc("purge", "error")
		return fmt.Errorf("purge mailbox %s: %v: %w", mb.Path, err, ErrInconsistentState)
	}

	// All derived state rebuilt, swap in one step.
	mb.records = kept
	mb.v2r = v2r
	mb.byMessageID = byID
	mb.bySubject = bySubj
	mb.byLabel = byLabel
	mb.needRebuild = false
	mb.recomputeStats()
	if removed {
		mb.Changed = true
	}
	metrics.MailboxOpInc("purge", "ok")
	mb.notify(EventInvalidated)
	return nil
}

// RebuildView recomputes the virtual view: records passing pred (nil means
// all), ordered by cmp (nil means insertion order). The sort is stable, equal
// comparator keys keep their relative insertion order so repeated resorts
// with unchanged data do not jitter. If an earlier rebuild failed, the
// indices are rebuilt as well.
func (mb *Mailbox) RebuildView(pred func(*Record) bool, cmp func(a, b *Record) int) error {
	if mb.needRebuild {
		byID, bySubj, byLabel := buildIndices(mb.records)
		if err := checkDerived(mb.records, nil, byID, bySubj, byLabel); err != nil {
			return fmt.Errorf("rebuild mailbox %s: %v: %w", mb.Path, err, ErrInconsistentState)
		}
		mb.byMessageID = byID
		mb.bySubject = bySubj
		mb.byLabel = byLabel
		mb.needRebuild = false
		mb.recomputeStats()
	}

	v2r := make([]int, 0, len(mb.records))
	for i, rec := range mb.records {
		if pred == nil || pred(rec) {
			v2r = append(v2r, i)
		}
	}
	if cmp != nil {
		slices.SortStableFunc(v2r, func(a, b int) int {
			return cmp(mb.records[a], mb.records[b])
		})
	}
	mb.v2r = v2r
	return nil
}

// checkDerived verifies rebuilt derived structures before they are swapped
// in: view entries must be unique, and all references must be valid slots.
func checkDerived(records []*Record, v2r []int, indices ...index) error {
	seen := map[int]bool{}
	for _, n := range v2r {
		if n < 0 || n >= len(records) {
			return fmt.Errorf("view entry %d outside %d slots", n, len(records))
		}
		if seen[n] {
			return fmt.Errorf("duplicate view entry %d", n)
		}
		seen[n] = true
	}
	for _, ix := range indices {
		for key, l := range ix {
			for _, n := range l {
				if n < 0 || n >= len(records) {
					return fmt.Errorf("index key %q references slot %d outside %d slots", key, n, len(records))
				}
			}
		}
	}
	return nil
}

// indexRecord adds a record at slot n to the three cross-reference indices.
func (mb *Mailbox) indexRecord(rec *Record, n int) {
	if key := message.MessageIDKey(rec.MessageID); key != "" {
		mb.byMessageID.add(key, n)
	}
	if key := message.SubjectKey(rec.Subject); key != "" {
		mb.bySubject.add(key, n)
	}
	if key := message.LabelKey(rec.Label); key != "" {
		mb.byLabel.add(key, n)
	}
}

func buildIndices(records []*Record) (byID, bySubj, byLabel index) {
	byID = index{}
	bySubj = index{}
	byLabel = index{}
	for n, rec := range records {
		if key := message.MessageIDKey(rec.MessageID); key != "" {
			byID.add(key, n)
		}
		if key := message.SubjectKey(rec.Subject); key != "" {
			bySubj.add(key, n)
		}
		if key := message.LabelKey(rec.Label); key != "" {
			byLabel.add(key, n)
		}
	}
	return
}

// ByMessageID returns the canonical (first inserted) record for a message-id,
// or nil if absent. For duplicate detection.
func (mb *Mailbox) ByMessageID(messageID string) *Record {
	n, ok := mb.byMessageID.first(message.MessageIDKey(messageID))
	if !ok {
		return nil
	}
	return mb.records[n]
}

// BySubject returns all records whose normalized subject matches that of
// subject, in insertion order. For threading by subject.
func (mb *Mailbox) BySubject(subject string) []*Record {
	return mb.lookupAll(mb.bySubject, message.SubjectKey(subject))
}

// ByLabel returns all records with the given label, in insertion order.
func (mb *Mailbox) ByLabel(label string) []*Record {
	return mb.lookupAll(mb.byLabel, message.LabelKey(label))
}

func (mb *Mailbox) lookupAll(ix index, key string) []*Record {
	var l []*Record
	for _, n := range ix.all(key) {
		l = append(l, mb.records[n])
	}
	return l
}

// notify delivers an event to subscribers, unless the mailbox is quiet.
func (mb *Mailbox) notify(kind EventKind) {
	if mb.Quiet || mb.Events == nil {
		return
	}
	mb.Events.Notify(Event{mb, kind})
}

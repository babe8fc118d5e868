package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var ctxbg = context.Background()

func tcheck(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

func tcompare(t *testing.T, got, exp any, msg string) {
	t.Helper()
	if got != exp {
		t.Fatalf("%s: got %v, expected %v", msg, got, exp)
	}
}

func byMessageID(a, b *Record) int {
	return strings.Compare(a.MessageID, b.MessageID)
}

func testRecord(id, subject string) *Record {
	return &Record{
		MessageID: "<" + id + "@mstore.example>",
		Subject:   subject,
		Size:      100,
		Received:  time.Now(),
	}
}

func TestMailbox(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	tcompare(t, mb.RealCount(), 0, "empty real count")
	tcompare(t, mb.VirtualCount(), 0, "empty virtual count")
	if mb.View() == nil {
		t.Fatalf("empty mailbox has nil view")
	}

	na, err := mb.AppendRecord(testRecord("a", "Hi"))
	tcheck(t, err, "append a")
	nb, err := mb.AppendRecord(testRecord("b", "Re: Hi"))
	tcheck(t, err, "append b")
	nc, err := mb.AppendRecord(testRecord("c", "Bye"))
	tcheck(t, err, "append c")
	tcompare(t, na, 0, "real index a")
	tcompare(t, nb, 1, "real index b")
	tcompare(t, nc, 2, "real index c")
	tcompare(t, mb.RealCount(), 3, "real count")
	tcompare(t, mb.MsgCount, 3, "msg count")
	tcompare(t, mb.Size, int64(300), "size")
	if !mb.StatsDone {
		t.Fatalf("stats not marked done after append")
	}
	if !mb.Changed {
		t.Fatalf("mailbox not marked changed after append")
	}

	err = mb.RebuildView(nil, byMessageID)
	tcheck(t, err, "rebuild view")
	tcompare(t, mb.VirtualCount(), 3, "virtual count")
	for i, exp := range []string{"Hi", "Re: Hi", "Bye"} {
		rec, err := mb.ViewRecord(i)
		tcheck(t, err, "view record")
		tcompare(t, rec.Subject, exp, "view order")
	}

	rec := mb.ByMessageID("<b@mstore.example>")
	if rec == nil || rec.Subject != "Re: Hi" {
		t.Fatalf("lookup b: got %v", rec)
	}

	// "Hi" and "Re: Hi" share a normalized subject, for threading.
	thread := mb.BySubject("Hi")
	tcompare(t, len(thread), 2, "thread size")
	tcompare(t, thread[0].MessageID, "<a@mstore.example>", "canonical thread record first")

	err = mb.MarkDeleted(nb, true)
	tcheck(t, err, "mark b deleted")
	tcompare(t, mb.MsgDeleted, 1, "deleted count")

	err = mb.Purge()
	tcheck(t, err, "purge")
	tcompare(t, mb.RealCount(), 2, "real count after purge")
	tcompare(t, mb.VirtualCount(), 2, "virtual count after purge")
	r0, err := mb.ViewRecord(0)
	tcheck(t, err, "view record 0")
	r1, err := mb.ViewRecord(1)
	tcheck(t, err, "view record 1")
	tcompare(t, r0.Subject, "Hi", "view after purge")
	tcompare(t, r1.Subject, "Bye", "view after purge")
	if rec := mb.ByMessageID("<b@mstore.example>"); rec != nil {
		t.Fatalf("lookup of purged message-id returned %v", rec)
	}
	tcompare(t, mb.MsgCount, 2, "msg count after purge")
	tcompare(t, mb.MsgDeleted, 0, "deleted count after purge")
	tcompare(t, mb.Size, int64(200), "size after purge")
}

func TestViewValidity(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	for i, id := range []string{"a", "b", "c", "d"} {
		rec := testRecord(id, "subject")
		if i%2 == 0 {
			rec.Deleted = true
		}
		_, err := mb.AppendRecord(rec)
		tcheck(t, err, "append")
	}
	err := mb.RebuildView(nil, nil)
	tcheck(t, err, "rebuild view")

	// All view entries must reference valid, live slots, none twice.
	seen := map[int]bool{}
	for _, n := range mb.View() {
		if n < 0 || n >= mb.RealCount() {
			t.Fatalf("view entry %d outside %d slots", n, mb.RealCount())
		}
		if seen[n] {
			t.Fatalf("view entry %d duplicated", n)
		}
		seen[n] = true
	}

	err = mb.Purge()
	tcheck(t, err, "purge")
	for _, n := range mb.View() {
		rec, err := mb.RecordAt(n)
		tcheck(t, err, "record at view entry")
		if rec.Deleted {
			t.Fatalf("view references deleted record after purge")
		}
	}

	if _, err := mb.ViewRecord(mb.VirtualCount()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("view record out of range: got %v, expected ErrNotFound", err)
	}
}

func TestRoundTrip(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	ids := []string{"d", "b", "a", "c"}
	for _, id := range ids {
		_, err := mb.AppendRecord(testRecord(id, "subject "+id))
		tcheck(t, err, "append")
	}

	// No filter, no comparator: view equals insertion order.
	err := mb.RebuildView(nil, nil)
	tcheck(t, err, "rebuild view")
	for i, id := range ids {
		rec, err := mb.ViewRecord(i)
		tcheck(t, err, "view record")
		tcompare(t, rec.MessageID, "<"+id+"@mstore.example>", "insertion order")
	}

	// Equal comparator keys: stable, still insertion order.
	err = mb.RebuildView(nil, func(a, b *Record) int { return 0 })
	tcheck(t, err, "rebuild view with constant comparator")
	for i, id := range ids {
		rec, err := mb.ViewRecord(i)
		tcheck(t, err, "view record")
		tcompare(t, rec.MessageID, "<"+id+"@mstore.example>", "stable order")
	}
}

func TestPurgeAll(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	for _, id := range []string{"a", "b", "c"} {
		rec := testRecord(id, "subject")
		rec.Label = "work"
		n, err := mb.AppendRecord(rec)
		tcheck(t, err, "append")
		err = mb.MarkDeleted(n, true)
		tcheck(t, err, "mark deleted")
	}
	err := mb.Purge()
	tcheck(t, err, "purge")
	tcompare(t, mb.RealCount(), 0, "real count")
	tcompare(t, mb.VirtualCount(), 0, "virtual count")
	tcompare(t, mb.MsgCount, 0, "msg count")
	tcompare(t, mb.Size, int64(0), "size")
	if rec := mb.ByMessageID("<a@mstore.example>"); rec != nil {
		t.Fatalf("message-id index not empty after purge")
	}
	if l := mb.BySubject("subject"); l != nil {
		t.Fatalf("subject index not empty after purge")
	}
	if l := mb.ByLabel("work"); l != nil {
		t.Fatalf("label index not empty after purge")
	}
}

func TestPermission(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	n, err := mb.AppendRecord(testRecord("a", "Hi"))
	tcheck(t, err, "append")

	mb.Rights = RightRead

	if _, err := mb.AppendRecord(testRecord("b", "Bye")); !errors.Is(err, ErrPermission) {
		t.Fatalf("append without insert right: got %v, expected ErrPermission", err)
	}
	if err := mb.MarkDeleted(n, true); !errors.Is(err, ErrPermission) {
		t.Fatalf("delete without delete right: got %v, expected ErrPermission", err)
	}
	if err := mb.MarkSeen(n, true); !errors.Is(err, ErrPermission) {
		t.Fatalf("mark seen without seen right: got %v, expected ErrPermission", err)
	}
	if err := mb.MarkFlagged(n, true); !errors.Is(err, ErrPermission) {
		t.Fatalf("flag without write right: got %v, expected ErrPermission", err)
	}
	if err := mb.Purge(); !errors.Is(err, ErrPermission) {
		t.Fatalf("purge without expunge right: got %v, expected ErrPermission", err)
	}

	// Rejected operations must have no partial effect.
	tcompare(t, mb.RealCount(), 1, "real count unchanged")
	tcompare(t, mb.MsgCount, 1, "msg count unchanged")
	rec, err := mb.RecordAt(n)
	tcheck(t, err, "record")
	if rec.Deleted || rec.Seen || rec.Flagged {
		t.Fatalf("record modified by rejected operations: %+v", rec)
	}
}

func TestCounters(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)

	rec := testRecord("a", "Hi")
	rec.New = true
	n, err := mb.AppendRecord(rec)
	tcheck(t, err, "append")
	tcompare(t, mb.MsgUnread, 1, "unread")
	tcompare(t, mb.MsgNew, 1, "new")
	if !mb.HasNew {
		t.Fatalf("HasNew not set after appending new message")
	}

	err = mb.MarkSeen(n, true)
	tcheck(t, err, "mark seen")
	tcompare(t, mb.MsgUnread, 0, "unread after seen")
	tcompare(t, mb.MsgNew, 0, "new after seen")
	if rec.New {
		t.Fatalf("seen record still marked new")
	}

	err = mb.MarkFlagged(n, true)
	tcheck(t, err, "mark flagged")
	tcompare(t, mb.MsgFlagged, 1, "flagged")

	err = mb.SetTagged(n, true)
	tcheck(t, err, "tag")
	tcompare(t, mb.MsgTagged, 1, "tagged")
	mb.UntagAll()
	tcompare(t, mb.MsgTagged, 0, "tagged after untag all")

	// Recomputing gives the same result as incremental maintenance.
	unread, flagged := mb.MsgUnread, mb.MsgFlagged
	mb.UpdateStats()
	tcompare(t, mb.MsgUnread, unread, "unread after recompute")
	tcompare(t, mb.MsgFlagged, flagged, "flagged after recompute")
}

func TestFilteredView(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		rec := testRecord(id, "subject")
		rec.Flagged = i%2 == 0
		_, err := mb.AppendRecord(rec)
		tcheck(t, err, "append")
	}
	err := mb.RebuildView(func(r *Record) bool { return r.Flagged }, byMessageID)
	tcheck(t, err, "rebuild filtered view")
	tcompare(t, mb.VirtualCount(), 3, "filtered virtual count")
	tcompare(t, mb.RealCount(), 5, "real count unaffected by filter")
	for i, exp := range []string{"a", "c", "e"} {
		rec, err := mb.ViewRecord(i)
		tcheck(t, err, "view record")
		tcompare(t, rec.MessageID, "<"+exp+"@mstore.example>", "filtered view order")
	}
}

func TestCapacityGrowth(t *testing.T) {
	mb := NewMailbox("/tmp/test.mbox", "test", TypeMbox)
	// Force several capacity doublings, with a view pointing into low slots.
	_, err := mb.AppendRecord(testRecord("first", "Hi"))
	tcheck(t, err, "append")
	err = mb.RebuildView(nil, nil)
	tcheck(t, err, "rebuild view")

	for i := 0; i < 200; i++ {
		_, err := mb.AppendRecord(&Record{MessageID: "<x@mstore.example>", Subject: "bulk", Size: 1})
		tcheck(t, err, "append")
	}
	// Existing view entries stay valid across growth.
	rec, err := mb.ViewRecord(0)
	tcheck(t, err, "view record after growth")
	tcompare(t, rec.MessageID, "<first@mstore.example>", "view entry after growth")
	tcompare(t, mb.RealCount(), 201, "real count after growth")
}

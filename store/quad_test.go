package store

import (
	"errors"
	"testing"
)

func TestQuadToggle(t *testing.T) {
	pairs := map[Quad]Quad{
		No:     Yes,
		Yes:    No,
		AskNo:  AskYes,
		AskYes: AskNo,
	}
	for q, exp := range pairs {
		got, err := q.Toggle()
		tcheck(t, err, "toggle")
		tcompare(t, got, exp, "toggle "+q.String())

		// Toggling twice is the identity.
		back, err := got.Toggle()
		tcheck(t, err, "toggle back")
		tcompare(t, back, q, "double toggle "+q.String())
	}

	if _, err := Abort.Toggle(); !errors.Is(err, ErrImmutablePolicy) {
		t.Fatalf("toggle abort: got %v, expected ErrImmutablePolicy", err)
	}
}

func TestQuadPolicy(t *testing.T) {
	p := QuadPolicy{Value: AskYes}
	err := p.Toggle()
	tcheck(t, err, "toggle unlocked policy")
	tcompare(t, p.Value, AskNo, "toggled value")

	p = QuadPolicy{Value: Yes, Locked: true}
	if err := p.Toggle(); !errors.Is(err, ErrImmutablePolicy) {
		t.Fatalf("toggle locked policy: got %v, expected ErrImmutablePolicy", err)
	}
	tcompare(t, p.Value, Yes, "locked value unchanged")
}

func TestQuadResolve(t *testing.T) {
	check := func(q Quad, expAnswer, expAsk bool) {
		t.Helper()
		answer, ask, err := q.Resolve()
		tcheck(t, err, "resolve")
		if answer != expAnswer || ask != expAsk {
			t.Fatalf("resolve %s: got %v %v, expected %v %v", q, answer, ask, expAnswer, expAsk)
		}
	}
	check(No, false, false)
	check(Yes, true, false)
	check(AskNo, false, true)
	check(AskYes, true, true)

	if _, _, err := Abort.Resolve(); err == nil {
		t.Fatalf("resolve abort did not fail")
	}
}

func TestQuadParse(t *testing.T) {
	for _, q := range []Quad{No, Yes, AskNo, AskYes} {
		got, err := ParseQuad(q.String())
		tcheck(t, err, "parse quad")
		tcompare(t, got, q, "parsed quad")
	}
	if _, err := ParseQuad("abort"); err == nil {
		t.Fatalf("parsing abort did not fail")
	}
	if _, err := ParseQuad("bogus"); err == nil {
		t.Fatalf("parsing bogus quad did not fail")
	}
}

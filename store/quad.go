package store

import (
	"fmt"
)

// Quad is a four-state (plus abort) confirmation value, used wherever an
// operation needs a yes/no answer that may be configured to auto-answer or to
// always prompt. AskNo and AskYes mean "ask the user", with the noted answer
// preselected. Rendering the actual prompt is the caller's concern.
type Quad int

const (
	Abort  Quad = -1
	No     Quad = 0
	Yes    Quad = 1
	AskNo  Quad = 2
	AskYes Quad = 3
)

var quadStrings = map[Quad]string{
	Abort:  "abort",
	No:     "no",
	Yes:    "yes",
	AskNo:  "ask-no",
	AskYes: "ask-yes",
}

func (q Quad) String() string {
	if s, ok := quadStrings[q]; ok {
		return s
	}
	return fmt.Sprintf("(unknown quad %d)", int(q))
}

// ParseQuad parses a confirmation value as used in configuration files.
func ParseQuad(s string) (Quad, error) {
	for q, name := range quadStrings {
		if name == s && q != Abort {
			return q, nil
		}
	}
	return Abort, fmt.Errorf("unknown confirmation value %q", s)
}

// Toggle flips the value: no and yes swap, ask-no and ask-yes swap. Abort
// cannot be toggled.
func (q Quad) Toggle() (Quad, error) {
	switch q {
	case No:
		return Yes, nil
	case Yes:
		return No, nil
	case AskNo:
		return AskYes, nil
	case AskYes:
		return AskNo, nil
	}
	return q, fmt.Errorf("toggle %s: %w", q, ErrImmutablePolicy)
}

// Resolve reduces the value to a concrete answer. For AskNo/AskYes, ask is
// true and answer is the preselected default the caller should offer when
// prompting. Abort is an error.
func (q Quad) Resolve() (answer, ask bool, err error) {
	switch q {
	case No:
		return false, false, nil
	case Yes:
		return true, false, nil
	case AskNo:
		return false, true, nil
	case AskYes:
		return true, true, nil
	}
	return false, false, fmt.Errorf("resolve %s: %w", q, ErrImmutablePolicy)
}

// QuadPolicy is a confirmation setting as configured, possibly locked by an
// administrator so it cannot be changed interactively.
type QuadPolicy struct {
	Value  Quad
	Locked bool
}

// Toggle flips the setting, failing for locked policies so callers can tell
// the user the setting is fixed.
func (p *QuadPolicy) Toggle() error {
	if p.Locked {
		return fmt.Errorf("toggle %s: locked: %w", p.Value, ErrImmutablePolicy)
	}
	v, err := p.Value.Toggle()
	if err != nil {
		return err
	}
	p.Value = v
	return nil
}

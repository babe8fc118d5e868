// Package message provides the few summary operations on messages that the
// store needs: normalizing subjects, message-ids and labels for use as index
// keys. Full message parsing is out of scope, a message is further treated as
// an opaque record.
package message

import (
	"strings"
)

// ThreadSubject returns the base subject to use for matching against other
// messages, to see if they belong to the same thread. Reply and forward
// decorations ("re:", "fwd:", mailing list tags, a trailing "(fwd)") are
// stripped, whitespace is collapsed and the result is lower-cased.
//
// Subject should already be q/b-word-decoded.
//
// The returned isResponse indicates whether any reply/forward decoration was
// present.
func ThreadSubject(subject string) (threadSubject string, isResponse bool) {
	// Lower-case and collapse all whitespace runs into single spaces.
	var b strings.Builder
	space := false
	for _, c := range strings.ToLower(subject) {
		switch c {
		case '\r':
		case ' ', '\t', '\n':
			space = b.Len() > 0
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(c)
		}
	}
	s := b.String()

	for {
		// Trailing "(fwd)", possibly repeated.
		for {
			prev := s
			s = strings.TrimRight(s, " ")
			if strings.HasSuffix(s, "(fwd)") {
				s = strings.TrimSuffix(s, "(fwd)")
				isResponse = true
			}
			if s == prev {
				break
			}
		}

		// Leading "[tag]" blobs and "re:"/"fw:"/"fwd:" markers, possibly repeated.
		for {
			prev := s
			s = trimTags(s)
			if ns, ok := trimReplyPrefix(s); ok {
				s = ns
				isResponse = true
			}
			if s == prev {
				break
			}
		}

		// "[fwd: ...]" wraps the entire subject, unwrap and start over.
		if strings.HasPrefix(s, "[fwd:") && strings.HasSuffix(s, "]") {
			s = strings.Trim(s[len("[fwd:"):len(s)-1], " ")
			isResponse = true
			continue
		}
		break
	}
	return strings.Trim(s, " "), isResponse
}

// trimTags removes leading "[...]" mailing list tags, leaving the string
// unchanged when a tag is the whole remaining subject. A nested "[" inside
// the tag aborts: that is not a tag but e.g. a "[fwd: ...]" wrapper.
func trimTags(s string) string {
	for {
		if !strings.HasPrefix(s, "[") {
			return s
		}
		e := strings.IndexByte(s, ']')
		if e < 0 {
			return s
		}
		if strings.IndexByte(s[1:e], '[') >= 0 {
			return s
		}
		rest := strings.TrimLeft(s[e+1:], " ")
		if rest == "" {
			// A bare "[tag]" subject stays as-is.
			return s
		}
		s = rest
	}
}

// trimReplyPrefix removes one "re:", "fw:" or "fwd:" marker, possibly with
// "[tag]" blobs between marker and colon.
func trimReplyPrefix(s string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(s, "fwd"):
		rest = s[3:]
	case strings.HasPrefix(s, "re"), strings.HasPrefix(s, "fw"):
		rest = s[2:]
	default:
		return s, false
	}
	rest = trimTags(strings.TrimLeft(rest, " "))
	if !strings.HasPrefix(rest, ":") {
		return s, false
	}
	return strings.TrimLeft(rest[1:], " "), true
}

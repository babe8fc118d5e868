package message

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MessageIDKey normalizes a Message-ID header value for use as index key:
// surrounding whitespace and angle brackets are removed and the result is
// lower-cased. An empty string means no usable message-id.
func MessageIDKey(s string) string {
	s = strings.Trim(s, " \t")
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	if strings.ContainsAny(s, "<> \t") {
		// Malformed, e.g. multiple ids or embedded whitespace. Not usable for
		// duplicate detection.
		return ""
	}
	return strings.ToLower(s)
}

// LabelKey normalizes a label (X-Label and similar) for use as index key:
// unicode-normalized (NFC), lower-cased, surrounding whitespace removed.
func LabelKey(s string) string {
	return strings.ToLower(norm.NFC.String(strings.Trim(s, " \t")))
}

// SubjectKey normalizes a subject for use as threading index key, see
// ThreadSubject.
func SubjectKey(s string) string {
	base, _ := ThreadSubject(s)
	return norm.NFC.String(base)
}

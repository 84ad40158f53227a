package highlight

import (
	"strings"

	"github.com/ehr/codeassist/internal/domain/evidence"
)

// ClassFor builds the highlight class for a code, e.g. "icd:250.00".
func ClassFor(codeType, code string) string {
	return strings.ToLower(strings.TrimSpace(codeType)) + ":" + strings.TrimSpace(code)
}

// Tag attaches one class to every span.
func Tag(spans []evidence.Span, class string) []Tagged {
	out := make([]Tagged, 0, len(spans))
	for _, s := range spans {
		out = append(out, Tagged{Span: s, Class: class})
	}
	return out
}

// Coded is anything that carries a code identity and resolved spans.
type Coded interface {
	HighlightClass() string
	EvidenceSpans() []evidence.Span
}

// TagCodes tags the spans of every given code with the code's class, in the
// order the codes are supplied.
func TagCodes[C Coded](codes []C) []Tagged {
	var out []Tagged
	for _, c := range codes {
		out = append(out, Tag(c.EvidenceSpans(), c.HighlightClass())...)
	}
	return out
}

package evidence

import "unicode/utf8"

// Span is a verified character range in a note. Offsets count code points,
// not bytes, matching the offsets reported by the prediction backends.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Len returns the number of characters covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// SpanInput is evidence as received from a backend or read back from disk.
// Any subset of the fields may be present.
type SpanInput struct {
	Start *int    `json:"start,omitempty"`
	End   *int    `json:"end,omitempty"`
	Text  *string `json:"text,omitempty"`
}

// HasOffsets reports whether both offsets were supplied.
func (in SpanInput) HasOffsets() bool { return in.Start != nil && in.End != nil }

// TextValue returns the advertised text or "".
func (in SpanInput) TextValue() string {
	if in.Text == nil {
		return ""
	}
	return *in.Text
}

// TokenAttribution is one sub-word token with its attribution score.
type TokenAttribution struct {
	Token       string  `json:"token"`
	Display     string  `json:"token_display,omitempty"`
	Rank        int     `json:"rank"`
	Attribution float64 `json:"attribution"`
}

// Evidence groups every evidence source a backend advertised for one code.
// Sources are consulted in field order: Spans, SpanTexts, Tokens.
type Evidence struct {
	Spans     []SpanInput        `json:"spans,omitempty"`
	SpanTexts []SpanInput        `json:"evidence_spans,omitempty"`
	Tokens    []TokenAttribution `json:"tokens,omitempty"`
}

// IsEmpty reports whether no evidence source was advertised.
func (e Evidence) IsEmpty() bool {
	return len(e.Spans) == 0 && len(e.SpanTexts) == 0 && len(e.Tokens) == 0
}

// NewSpanInput builds a SpanInput from concrete values. Negative offsets are
// treated as absent.
func NewSpanInput(start, end int, text string) SpanInput {
	in := SpanInput{}
	if start >= 0 && end >= 0 {
		s, e := start, end
		in.Start, in.End = &s, &e
	}
	if text != "" {
		t := text
		in.Text = &t
	}
	return in
}

// ToInput converts a resolved span back to its persisted form.
func (s Span) ToInput() SpanInput {
	return NewSpanInput(s.Start, s.End, s.Text)
}

// RuneLen returns the note length in characters.
func RuneLen(note string) int { return utf8.RuneCountInString(note) }

package evidence

import (
	"sort"
	"strings"
	"unicode"
)

// text is a note prepared for case-insensitive searching with character
// offsets.
type text struct {
	runes  []rune
	folded []rune
}

func newText(note string) text {
	runes := []rune(note)
	folded := make([]rune, len(runes))
	for i, r := range runes {
		folded[i] = unicode.ToLower(r)
	}
	return text{runes: runes, folded: folded}
}

func (t text) len() int { return len(t.runes) }

func (t text) span(start, end int) Span {
	return Span{Start: start, End: end, Text: string(t.runes[start:end])}
}

// indexFold returns the first case-insensitive occurrence of needle at or
// after from, or -1.
func (t text) indexFold(needle string, from int) int {
	n := []rune(needle)
	for i, r := range n {
		n[i] = unicode.ToLower(r)
	}
	if len(n) == 0 || from < 0 {
		return -1
	}
	last := len(t.folded) - len(n)
outer:
	for i := from; i <= last; i++ {
		for j, r := range n {
			if t.folded[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Resolve aligns heterogeneous evidence with the note and returns the spans
// that could be verified, sorted by (start, end). Evidence that cannot be
// located is dropped silently.
func Resolve(note string, ev Evidence) []Span {
	t := newText(note)

	var spans []Span
	if len(ev.Spans) > 0 {
		spans = t.resolveItems(ev.Spans)
	}
	if len(spans) == 0 && len(ev.SpanTexts) > 0 {
		spans = t.resolveItems(ev.SpanTexts)
	}
	if len(spans) == 0 && len(ev.Tokens) > 0 {
		spans = t.resolveTokens(ev.Tokens)
	}

	SortSpans(spans)
	return spans
}

// ResolveItem resolves a single piece of evidence: offsets first, then its
// advertised text.
func ResolveItem(note string, in SpanInput) (Span, bool) {
	return newText(note).resolveItem(in)
}

// ResolveAll resolves each item independently and keeps the ones that could
// be located, sorted by (start, end).
func ResolveAll(note string, items []SpanInput) []Span {
	spans := newText(note).resolveItems(items)
	SortSpans(spans)
	return spans
}

func (t text) resolveItems(items []SpanInput) []Span {
	out := make([]Span, 0, len(items))
	for _, in := range items {
		if s, ok := t.resolveItem(in); ok {
			out = append(out, s)
		}
	}
	return out
}

func (t text) resolveItem(in SpanInput) (Span, bool) {
	if in.HasOffsets() {
		start, end := clamp(*in.Start, 0, t.len()), clamp(*in.End, 0, t.len())
		if end > start {
			return t.span(start, end), true
		}
	}
	return t.locate(in.TextValue())
}

// locate finds the first occurrence of the first candidate of raw that
// appears anywhere in the note.
func (t text) locate(raw string) (Span, bool) {
	for _, cand := range Candidates(raw) {
		if idx := t.indexFold(cand, 0); idx >= 0 {
			return t.span(idx, idx+len([]rune(cand))), true
		}
	}
	return Span{}, false
}

// resolveTokens reconstructs spans from attribution tokens. Tokens are
// expected in document order; the search cursor only moves forward, with an
// unanchored search as fallback for tokens that appear before it.
func (t text) resolveTokens(tokens []TokenAttribution) []Span {
	var out []Span
	cursor := 0
	for _, tok := range tokens {
		cands := tokenCandidates(tok)
		if len(cands) == 0 {
			continue
		}
		start, length := -1, 0
		for _, c := range cands {
			if idx := t.indexFold(c, cursor); idx >= 0 {
				start, length = idx, len([]rune(c))
				break
			}
		}
		if start < 0 {
			for _, c := range cands {
				if idx := t.indexFold(c, 0); idx >= 0 {
					start, length = idx, len([]rune(c))
					break
				}
			}
		}
		if start < 0 {
			continue
		}
		out = append(out, t.span(start, start+length))
		cursor = start + length
	}
	return out
}

func tokenCandidates(tok TokenAttribution) []string {
	var out []string
	for _, raw := range []string{tok.Token, tok.Display} {
		if raw == "" {
			continue
		}
		c := strings.TrimSpace(DecodeToken(raw))
		if c == "" {
			continue
		}
		if len(out) == 1 && out[0] == c {
			continue
		}
		out = append(out, c)
	}
	return out
}

// SortSpans orders spans by (start, end), keeping the input order of equal
// ranges.
func SortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End < spans[j].End
	})
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

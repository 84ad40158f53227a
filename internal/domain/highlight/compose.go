package highlight

import (
	"sort"

	"github.com/ehr/codeassist/internal/domain/evidence"
)

// Tagged is a resolved span together with the highlight class of the code
// it belongs to.
type Tagged struct {
	Span  evidence.Span `json:"span"`
	Class string        `json:"class"`
}

// Segment is one run of the paint plan. Plain segments have an empty Class.
type Segment struct {
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted"`
	Class       string `json:"class,omitempty"`
}

// Compose merges tagged spans into ordered, disjoint segments whose texts
// concatenate back to the note. Overlaps are resolved first-span-wins: a
// later span only paints the part past the end of what is already painted.
func Compose(note string, tagged []Tagged) []Segment {
	runes := []rune(note)
	n := len(runes)
	if n == 0 {
		return nil
	}

	spans := make([]Tagged, 0, len(tagged))
	for _, t := range tagged {
		start, end := clamp(t.Span.Start, n), clamp(t.Span.End, n)
		if end <= start {
			continue
		}
		t.Span = evidence.Span{Start: start, End: end}
		spans = append(spans, t)
	}
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i].Span, spans[j].Span
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return spans[i].Class < spans[j].Class
	})

	segments := make([]Segment, 0, 2*len(spans)+1)
	plain := func(start, end int) {
		if end > start {
			segments = append(segments, Segment{Start: start, End: end, Text: string(runes[start:end])})
		}
	}

	cursor := 0
	for _, t := range spans {
		start := max(cursor, t.Span.Start)
		end := max(start, t.Span.End)
		if end == start {
			continue
		}
		plain(cursor, start)
		segments = append(segments, Segment{
			Start:       start,
			End:         end,
			Text:        string(runes[start:end]),
			Highlighted: true,
			Class:       t.Class,
		})
		cursor = end
	}
	plain(cursor, n)

	return segments
}

// Highlighted returns only the painted segments of a plan.
func Highlighted(segments []Segment) []Segment {
	var out []Segment
	for _, s := range segments {
		if s.Highlighted {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v > n {
		return n
	}
	return v
}

package evidence

import (
	"testing"
)

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestResolve_ExplicitOffsetsRecomputeText(t *testing.T) {
	note := "Patient has acute appendicitis."
	spans := Resolve(note, Evidence{
		Spans: []SpanInput{{Start: intPtr(12), End: intPtr(31), Text: strPtr("something else")}},
	})
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Text != "acute appendicitis." {
		t.Errorf("expected exact slice %q, got %q", "acute appendicitis.", spans[0].Text)
	}
	if spans[0].Start != 12 || spans[0].End != 31 {
		t.Errorf("unexpected offsets [%d,%d)", spans[0].Start, spans[0].End)
	}
}

func TestResolve_ExplicitOffsetsAlwaysMatchSlice(t *testing.T) {
	note := "Hx: DM2, HTN. Pt reports chest pain × 3 days."
	runes := []rune(note)
	for start := 0; start < len(runes); start++ {
		for end := start + 1; end <= len(runes); end++ {
			spans := Resolve(note, Evidence{Spans: []SpanInput{{Start: intPtr(start), End: intPtr(end), Text: strPtr("x")}}})
			if len(spans) != 1 {
				t.Fatalf("[%d,%d): expected 1 span, got %d", start, end, len(spans))
			}
			if want := string(runes[start:end]); spans[0].Text != want {
				t.Fatalf("[%d,%d): got %q, want %q", start, end, spans[0].Text, want)
			}
		}
	}
}

func TestResolve_OffsetsClamped(t *testing.T) {
	note := "fever and chills"
	spans := Resolve(note, Evidence{Spans: []SpanInput{{Start: intPtr(-5), End: intPtr(5)}, {Start: intPtr(10), End: intPtr(500)}}})
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Text != "fever" || spans[1].Text != "chills" {
		t.Errorf("unexpected spans: %+v", spans)
	}
}

func TestResolve_InvalidOffsetsFallBackToText(t *testing.T) {
	note := "Assessment: hypertension, stable."
	spans := Resolve(note, Evidence{SpanTexts: []SpanInput{{Start: intPtr(-1), End: intPtr(-1), Text: strPtr("Hypertension")}}})
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Start != 12 || spans[0].Text != "hypertension" {
		t.Errorf("unexpected span %+v", spans[0])
	}
}

func TestResolve_InvalidOffsetsWithoutTextDropped(t *testing.T) {
	spans := Resolve("abc", Evidence{Spans: []SpanInput{{Start: intPtr(2), End: intPtr(2)}, {Start: intPtr(3), End: intPtr(1)}}})
	if len(spans) != 0 {
		t.Errorf("expected no spans, got %+v", spans)
	}
}

func TestResolve_SpanTextCandidateFallback(t *testing.T) {
	note := "Patient has appendicitis and fever."
	spans := Resolve(note, Evidence{SpanTexts: []SpanInput{{Text: strPtr("Appendicitis.")}}})
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Start != 12 || spans[0].End != 24 {
		t.Errorf("expected [12,24), got [%d,%d)", spans[0].Start, spans[0].End)
	}
	if spans[0].Text != "appendicitis" {
		t.Errorf("expected note casing to be kept, got %q", spans[0].Text)
	}
}

func TestResolve_UnmatchedTextDropped(t *testing.T) {
	note := "Patient has appendicitis and fever."
	items := []SpanInput{
		{Text: strPtr("fever")},
		{Text: strPtr("myocardial infarction")},
		{Text: strPtr(`"appendicitis"`)},
	}
	spans := Resolve(note, Evidence{SpanTexts: items})
	if len(spans) != len(items)-1 {
		t.Fatalf("expected %d spans, got %d", len(items)-1, len(spans))
	}
	if spans[0].Text != "appendicitis" || spans[1].Text != "fever" {
		t.Errorf("expected spans sorted by start, got %+v", spans)
	}
}

func TestResolve_SourcesFallThroughWhenEmpty(t *testing.T) {
	note := "chest pain radiating to left arm"
	ev := Evidence{
		Spans:     []SpanInput{{Text: strPtr("not in note")}},
		SpanTexts: []SpanInput{{Text: strPtr("left arm")}},
		Tokens:    []TokenAttribution{{Token: "Ġchest"}},
	}
	spans := Resolve(note, ev)
	if len(spans) != 1 || spans[0].Text != "left arm" {
		t.Fatalf("expected span texts to win, got %+v", spans)
	}
}

func TestResolve_FirstSourceWins(t *testing.T) {
	note := "chest pain radiating to left arm"
	ev := Evidence{
		Spans:     []SpanInput{{Start: intPtr(0), End: intPtr(10)}},
		SpanTexts: []SpanInput{{Text: strPtr("left arm")}},
	}
	spans := Resolve(note, ev)
	if len(spans) != 1 || spans[0].Text != "chest pain" {
		t.Fatalf("expected explicit spans only, got %+v", spans)
	}
}

func TestResolve_TokensAdvanceCursor(t *testing.T) {
	note := "pain in chest, chest pain again"
	ev := Evidence{Tokens: []TokenAttribution{
		{Token: "Ġpain", Rank: 1},
		{Token: "Ġchest", Rank: 2},
		{Token: "Ġchest", Rank: 3},
		{Token: "Ġpain", Rank: 4},
	}}
	spans := Resolve(note, ev)
	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d: %+v", len(spans), spans)
	}
	wantStarts := []int{0, 8, 15, 21}
	for i, s := range spans {
		if s.Start != wantStarts[i] {
			t.Errorf("span %d: expected start %d, got %d", i, wantStarts[i], s.Start)
		}
	}
}

func TestResolve_TokensFallBackToUnanchored(t *testing.T) {
	note := "fever then cough"
	ev := Evidence{Tokens: []TokenAttribution{
		{Token: "cough"},
		{Token: "fever"},
		{Token: "Ġxyzzy"},
	}}
	spans := Resolve(note, ev)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %+v", spans)
	}
	if spans[0].Text != "fever" || spans[1].Text != "cough" {
		t.Errorf("unexpected spans %+v", spans)
	}
}

func TestResolve_TokenDisplayFormUsed(t *testing.T) {
	note := "Assessment:\nHypertension"
	ev := Evidence{Tokens: []TokenAttribution{
		{Token: "<unk>", Display: "hypertension"},
		{Token: "Ċ"},
	}}
	spans := Resolve(note, ev)
	if len(spans) != 1 {
		t.Fatalf("expected whitespace-only token to be skipped, got %+v", spans)
	}
	if spans[0].Text != "Hypertension" {
		t.Errorf("unexpected span %+v", spans[0])
	}
}

func TestResolve_UnicodeOffsetsAreCharacters(t *testing.T) {
	note := "Température élevée, fièvre."
	spans := Resolve(note, Evidence{SpanTexts: []SpanInput{{Text: strPtr("FIÈVRE")}}})
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Start != 20 || spans[0].Text != "fièvre" {
		t.Errorf("unexpected span %+v", spans[0])
	}
}

func TestResolve_NoEvidence(t *testing.T) {
	if spans := Resolve("anything", Evidence{}); len(spans) != 0 {
		t.Errorf("expected no spans, got %+v", spans)
	}
}

func TestResolveItem(t *testing.T) {
	note := "Chronic kidney disease stage 3"
	s, ok := ResolveItem(note, NewSpanInput(-1, -1, "kidney disease"))
	if !ok || s.Start != 8 || s.End != 22 {
		t.Errorf("unexpected result %+v ok=%v", s, ok)
	}
	if _, ok := ResolveItem(note, SpanInput{}); ok {
		t.Error("expected empty input to be unresolvable")
	}
}

package prediction

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/evidence"
	"github.com/ehr/codeassist/internal/domain/highlight"
)

// Source names the backend that produced a prediction.
type Source string

const (
	SourceLocal Source = "local"
	SourceLLM   Source = "llm"
)

// ParseSource accepts "local" or "llm".
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceLocal, SourceLLM:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown prediction backend %q", s)
}

// Request is the backend configuration for one prediction call.
type Request struct {
	Note                string  `json:"note"`
	Backend             Source  `json:"backend"`
	Model               string  `json:"model,omitempty"`
	ExplainMethod       string  `json:"explain_method,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold,omitempty"`
	ICDVersion          string  `json:"icd_version,omitempty"`
}

// Response is the upstream payload for both backends.
type Response struct {
	ICDCodes  []CodeInput `json:"icd_codes"`
	CPTCodes  []CodeInput `json:"cpt_codes"`
	Reasoning string      `json:"reasoning,omitempty"`
	Message   string      `json:"message,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// CodeInput is one predicted code as the backend reports it.
type CodeInput struct {
	Code          string               `json:"code"`
	Description   string               `json:"description"`
	Probability   *float64             `json:"probability,omitempty"`
	Explanation   Explanation          `json:"-"`
	EvidenceSpans []evidence.SpanInput `json:"evidence_spans,omitempty"`
}

// Explanation is either a TextExplanation or a StructuredExplanation.
type Explanation interface {
	// Summary is the human-readable rationale.
	Summary() string
	// Evidence returns the evidence sources carried by the explanation.
	Evidence() evidence.Evidence
}

// TextExplanation is free-text rationale, as returned by the LLM backend.
type TextExplanation string

func (t TextExplanation) Summary() string             { return string(t) }
func (t TextExplanation) Evidence() evidence.Evidence { return evidence.Evidence{} }

// StructuredExplanation carries attribution spans and tokens from the local
// model.
type StructuredExplanation struct {
	Text   string                      `json:"text,omitempty"`
	Spans  []evidence.SpanInput        `json:"spans,omitempty"`
	Tokens []evidence.TokenAttribution `json:"tokens,omitempty"`
}

func (s StructuredExplanation) Summary() string { return s.Text }

func (s StructuredExplanation) Evidence() evidence.Evidence {
	return evidence.Evidence{Spans: s.Spans, Tokens: s.Tokens}
}

func (c *CodeInput) UnmarshalJSON(data []byte) error {
	type alias CodeInput
	var raw struct {
		alias
		Explanation json.RawMessage `json:"explanation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = CodeInput(raw.alias)
	exp, err := decodeExplanation(raw.Explanation)
	if err != nil {
		return fmt.Errorf("code %s: %w", c.Code, err)
	}
	c.Explanation = exp
	return nil
}

func (c CodeInput) MarshalJSON() ([]byte, error) {
	type alias CodeInput
	return json.Marshal(struct {
		alias
		Explanation Explanation `json:"explanation,omitempty"`
	}{alias(c), c.Explanation})
}

func decodeExplanation(raw json.RawMessage) (Explanation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return TextExplanation(""), nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decoding explanation: %w", err)
		}
		return TextExplanation(s), nil
	case '{':
		var s StructuredExplanation
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decoding explanation: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported explanation payload %.20s", raw)
}

// PredictedCode is a code ready for display: evidence has been resolved
// against the note.
type PredictedCode struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Probability *float64        `json:"probability,omitempty"`
	Explanation string          `json:"explanation"`
	Spans       []evidence.Span `json:"spans"`
	Source      Source          `json:"source"`
	CodeType    string          `json:"code_type"`
	ICDVersion  string          `json:"icd_version,omitempty"`
	Expanded    bool            `json:"expanded"`
}

func (p PredictedCode) HighlightClass() string { return highlight.ClassFor(p.CodeType, p.Code) }

func (p PredictedCode) EvidenceSpans() []evidence.Span { return p.Spans }

// Finalize converts the prediction into a curated entry.
func (p PredictedCode) Finalize() curation.FinalizedCode {
	return curation.FinalizedCode{
		Code:        p.Code,
		Description: p.Description,
		Explanation: p.Explanation,
		Probability: p.Probability,
		Type:        p.CodeType,
		Spans:       p.Spans,
		ICDVersion:  p.ICDVersion,
	}.Clone()
}

// Result is an ingested prediction.
type Result struct {
	Codes     []PredictedCode `json:"codes"`
	Reasoning string          `json:"reasoning,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// ModelList is the upstream /models payload.
type ModelList struct {
	Models []string `json:"models"`
}

// MethodList is the upstream /explain-methods payload.
type MethodList struct {
	Methods []string `json:"methods"`
}

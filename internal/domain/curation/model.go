package curation

import (
	"github.com/ehr/codeassist/internal/domain/evidence"
	"github.com/ehr/codeassist/internal/domain/highlight"
)

// Code types.
const (
	TypeICD = "icd"
	TypeCPT = "cpt"
)

// FinalizedCode is a code the user has committed to the curated list.
type FinalizedCode struct {
	Code        string          `json:"code"`
	Description string          `json:"description"`
	Explanation string          `json:"explanation"`
	Probability *float64        `json:"probability,omitempty"`
	Type        string          `json:"type"`
	Spans       []evidence.Span `json:"spans"`
	ICDVersion  string          `json:"icd_version,omitempty"`
	Editing     bool            `json:"editing"`
}

func (c FinalizedCode) HighlightClass() string { return highlight.ClassFor(c.Type, c.Code) }

func (c FinalizedCode) EvidenceSpans() []evidence.Span { return c.Spans }

// Clone returns a deep copy.
func (c FinalizedCode) Clone() FinalizedCode {
	out := c
	if c.Probability != nil {
		p := *c.Probability
		out.Probability = &p
	}
	if c.Spans != nil {
		out.Spans = make([]evidence.Span, len(c.Spans))
		copy(out.Spans, c.Spans)
	}
	return out
}

// CloneAll deep-copies a code list.
func CloneAll(codes []FinalizedCode) []FinalizedCode {
	if codes == nil {
		return nil
	}
	out := make([]FinalizedCode, len(codes))
	for i, c := range codes {
		out[i] = c.Clone()
	}
	return out
}

// Counts summarises a code list by type.
type Counts struct {
	ICD   int `json:"icd"`
	CPT   int `json:"cpt"`
	Total int `json:"total"`
}

// CountCodes tallies codes by type.
func CountCodes(codes []FinalizedCode) Counts {
	var c Counts
	for _, code := range codes {
		switch code.Type {
		case TypeICD:
			c.ICD++
		case TypeCPT:
			c.CPT++
		}
		c.Total++
	}
	return c
}

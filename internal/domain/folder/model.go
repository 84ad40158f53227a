package folder

import (
	"strings"
	"time"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/evidence"
)

// PersistedCode is the on-disk and in-database shape of a finalized code.
// Evidence is stored as raw inputs so that a folder written by an older
// build (offsets only, text only, or both) still resolves against its note.
type PersistedCode struct {
	Code          string               `json:"code"`
	CodeType      string               `json:"code_type"`
	Description   string               `json:"description"`
	Explanation   string               `json:"explanation"`
	Probability   *float64             `json:"probability"`
	ICDVersion    string               `json:"icd_version,omitempty"`
	EvidenceSpans []evidence.SpanInput `json:"evidence_spans"`
}

// FromFinalized converts a curated code for persistence.
func FromFinalized(c curation.FinalizedCode) PersistedCode {
	spans := make([]evidence.SpanInput, 0, len(c.Spans))
	for _, s := range c.Spans {
		spans = append(spans, s.ToInput())
	}
	c = c.Clone()
	return PersistedCode{
		Code:          c.Code,
		CodeType:      c.Type,
		Description:   c.Description,
		Explanation:   c.Explanation,
		Probability:   c.Probability,
		ICDVersion:    c.ICDVersion,
		EvidenceSpans: spans,
	}
}

// FromFinalizedAll converts a curated list for persistence.
func FromFinalizedAll(codes []curation.FinalizedCode) []PersistedCode {
	out := make([]PersistedCode, 0, len(codes))
	for _, c := range codes {
		out = append(out, FromFinalized(c))
	}
	return out
}

// Finalize resolves the stored evidence against note. Evidence that no
// longer matches is dropped. A missing code type is read as ICD.
func (p PersistedCode) Finalize(note string) curation.FinalizedCode {
	codeType := strings.ToLower(strings.TrimSpace(p.CodeType))
	if codeType == "" {
		codeType = curation.TypeICD
	}
	spans := evidence.Resolve(note, evidence.Evidence{Spans: p.EvidenceSpans})
	if spans == nil {
		spans = []evidence.Span{}
	}
	return curation.FinalizedCode{
		Code:        p.Code,
		Description: p.Description,
		Explanation: p.Explanation,
		Probability: p.Probability,
		Type:        codeType,
		Spans:       spans,
		ICDVersion:  p.ICDVersion,
	}.Clone()
}

// Folder is one persisted review bundle, named by its admission identifier.
type Folder struct {
	Name        string          `json:"name"`
	NoteText    string          `json:"note_text"`
	NoteFile    string          `json:"note_file"`
	Codes       []PersistedCode `json:"codes"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// FinalizedCodes returns the folder's codes with evidence resolved against
// its newline-normalized note.
func (f *Folder) FinalizedCodes() []curation.FinalizedCode {
	note := evidence.NormalizeNewlines(f.NoteText)
	out := make([]curation.FinalizedCode, 0, len(f.Codes))
	for _, c := range f.Codes {
		out = append(out, c.Finalize(note))
	}
	return out
}

// Summary is a folder listing entry.
type Summary struct {
	Name        string          `json:"name"`
	GeneratedAt time.Time       `json:"generated_at"`
	CodeCounts  curation.Counts `json:"code_counts"`
	NoteFile    string          `json:"note_file"`
}

// SaveRequest writes a folder. With UpdateExisting false a new folder is
// created under a collision-free name. With UpdateExisting true the folder
// named OldName (or Name when OldName is empty) is overwritten, and a
// differing Name renames it.
type SaveRequest struct {
	Name           string          `json:"name,omitempty"`
	OldName        string          `json:"old_name,omitempty"`
	NoteText       string          `json:"note_text"`
	NoteFile       string          `json:"note_file,omitempty"`
	Codes          []PersistedCode `json:"codes"`
	UpdateExisting bool            `json:"update_existing"`
}

// SaveResult reports where a folder was written.
type SaveResult struct {
	Name       string          `json:"name"`
	OutputPath string          `json:"output_path"`
	NoteFile   string          `json:"note_file"`
	CodesFile  string          `json:"codes_file,omitempty"`
	Counts     curation.Counts `json:"counts"`
	Renamed    bool            `json:"renamed"`
}

// CountPersisted tallies persisted codes by type.
func CountPersisted(codes []PersistedCode) curation.Counts {
	var c curation.Counts
	for _, code := range codes {
		switch strings.ToLower(strings.TrimSpace(code.CodeType)) {
		case curation.TypeCPT:
			c.CPT++
		default:
			c.ICD++
		}
		c.Total++
	}
	return c
}

package workflow

import (
	"fmt"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/folder"
	"github.com/ehr/codeassist/internal/domain/highlight"
	"github.com/ehr/codeassist/internal/domain/prediction"
	"github.com/ehr/codeassist/internal/domain/review"
	"github.com/ehr/codeassist/internal/domain/terminology"
)

// Mode is the top-level workspace state.
type Mode string

const (
	ModePredict Mode = "predict"
	ModeReview  Mode = "review"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePredict, ModeReview:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// state is everything a session owns. It is only touched under the
// controller mutex.
type state struct {
	mode     Mode
	note     string
	noteFile string

	predictions []prediction.PredictedCode
	selected    map[string]bool
	reasoning   string

	codes *curation.Store

	// admissionID is the folder name the user has typed: the finalize name
	// in Predict mode, the (possibly renamed) identifier in Review mode.
	admissionID string
	loaded      string
	snapshot    review.Snapshot
	folders     []folder.Summary
	filter      string

	message  string
	inFlight string
	epoch    uint64

	lookupSeq   uint64
	lookup      LookupResult
	predictSegs []highlight.Segment
	finalSegs   []highlight.Segment
	finalRev    uint64
	finalValid  bool
}

func newState() state {
	return state{mode: ModePredict, codes: curation.NewStore(), selected: map[string]bool{}}
}

// clearSession drops every session-scoped value and invalidates
// outstanding requests. The status message and lookup sequence survive.
func (s *state) clearSession() {
	s.note, s.noteFile = "", ""
	s.clearPredictions()
	s.codes.Reset()
	s.admissionID = ""
	s.unload()
	s.folders = nil
	s.filter = ""
	s.lookup = LookupResult{}
	s.epoch++
}

func (s *state) clearPredictions() {
	s.predictions = nil
	s.selected = map[string]bool{}
	s.reasoning = ""
	s.predictSegs = nil
}

// unload forgets the loaded folder and its workspace.
func (s *state) unload() {
	if s.loaded != "" {
		s.note, s.noteFile = "", ""
		s.codes.Reset()
		s.admissionID = ""
	}
	s.loaded = ""
	s.snapshot = review.Snapshot{}
	s.finalValid = false
}

func (s *state) prediction(id string) (int, bool) {
	for i, p := range s.predictions {
		if p.ID == id {
			return i, true
		}
	}
	return -1, false
}

// View is an immutable, JSON-ready copy of a session's state.
type View struct {
	Mode         Mode                       `json:"mode"`
	Note         string                     `json:"note"`
	NoteFile     string                     `json:"note_file,omitempty"`
	Predictions  []prediction.PredictedCode `json:"predictions"`
	Selected     []string                   `json:"selected"`
	Reasoning    string                     `json:"reasoning,omitempty"`
	Finalized    []curation.FinalizedCode   `json:"finalized"`
	Counts       curation.Counts            `json:"counts"`
	AdmissionID  string                     `json:"admission_id,omitempty"`
	LoadedFolder string                     `json:"loaded_folder,omitempty"`
	HasChanges   bool                       `json:"has_changes"`
	Folders      []folder.Summary           `json:"folders"`
	FolderFilter string                     `json:"folder_filter,omitempty"`
	Suggestions  []*terminology.Code        `json:"suggestions"`
	Message      string                     `json:"message,omitempty"`
	Busy         bool                       `json:"busy"`
	BusyWith     string                     `json:"busy_with,omitempty"`
}

func (s *state) view() View {
	v := View{
		Mode:         s.mode,
		Note:         s.note,
		NoteFile:     s.noteFile,
		Predictions:  make([]prediction.PredictedCode, len(s.predictions)),
		Selected:     []string{},
		Reasoning:    s.reasoning,
		Finalized:    s.codes.List(),
		AdmissionID:  s.admissionID,
		LoadedFolder: s.loaded,
		Folders:      append([]folder.Summary{}, s.folders...),
		FolderFilter: s.filter,
		Suggestions:  append([]*terminology.Code{}, s.lookup.Codes...),
		Message:      s.message,
		Busy:         s.inFlight != "",
		BusyWith:     s.inFlight,
	}
	for i, p := range s.predictions {
		cp := p
		cp.Spans = append(cp.Spans[:0:0], p.Spans...)
		v.Predictions[i] = cp
		if s.selected[p.ID] {
			v.Selected = append(v.Selected, p.ID)
		}
	}
	v.Counts = curation.CountCodes(v.Finalized)
	if s.loaded != "" {
		v.HasChanges = s.snapshot.HasChanges(v.Finalized, s.admissionID)
	}
	return v
}

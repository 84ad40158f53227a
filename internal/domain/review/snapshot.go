package review

import "github.com/ehr/codeassist/internal/domain/curation"

// Snapshot is the deep copy of a folder's codes taken when it is loaded or
// saved. The zero value means nothing is loaded.
type Snapshot struct {
	AdmissionID string
	Codes       []curation.FinalizedCode
	taken       bool
}

// Take captures a new snapshot.
func Take(codes []curation.FinalizedCode, admissionID string) Snapshot {
	return Snapshot{AdmissionID: admissionID, Codes: curation.CloneAll(codes), taken: true}
}

// Taken reports whether the snapshot holds a loaded folder.
func (s Snapshot) Taken() bool { return s.taken }

func (s Snapshot) HasChanges(current []curation.FinalizedCode, admissionID string) bool {
	return HasChanges(current, admissionID, s.Codes, s.AdmissionID)
}

func (s Snapshot) Diff(current []curation.FinalizedCode, admissionID string) Summary {
	return Diff(current, admissionID, s.Codes, s.AdmissionID)
}

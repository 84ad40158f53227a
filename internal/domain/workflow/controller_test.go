package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/prediction"
)

func newTestController(p *mockPredictor, f *mockFolders, s *mockSearcher) *Controller {
	if p == nil {
		p = &mockPredictor{resp: sampleResponse()}
	}
	if f == nil {
		f = newMockFolders()
	}
	if s == nil {
		s = newSearcher()
	}
	return NewController(p, f, s, WithDebounce(0))
}

// predicted sets the note and runs a successful prediction.
func predicted(t *testing.T, c *Controller) []prediction.PredictedCode {
	t.Helper()
	if err := c.SetNote(testNote, "adm-1.txt"); err != nil {
		t.Fatalf("SetNote: %v", err)
	}
	res, err := c.Predict(context.Background(), PredictOptions{Backend: prediction.SourceLocal})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	return res.Codes
}

func TestController_InitialState(t *testing.T) {
	v := newTestController(nil, nil, nil).View()
	if v.Mode != ModePredict {
		t.Errorf("expected predict mode, got %s", v.Mode)
	}
	if v.Busy || v.HasChanges || len(v.Predictions) != 0 || len(v.Finalized) != 0 {
		t.Errorf("unexpected initial view %+v", v)
	}
}

func TestController_SetNoteNormalizesNewlines(t *testing.T) {
	c := newTestController(nil, nil, nil)
	if err := c.SetNote("a\r\nb\rc", "x.txt"); err != nil {
		t.Fatal(err)
	}
	if v := c.View(); v.Note != "a\nb\nc" || v.NoteFile != "x.txt" {
		t.Errorf("unexpected note %q file %q", v.Note, v.NoteFile)
	}
}

func TestController_Predict(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)
	if len(codes) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(codes))
	}
	if codes[0].Code != "K35.80" || codes[0].CodeType != curation.TypeICD {
		t.Errorf("expected ICD first, got %+v", codes[0])
	}
	if len(codes[0].Spans) != 1 || codes[0].Spans[0].Text != "acute appendicitis" {
		t.Errorf("unexpected spans %+v", codes[0].Spans)
	}
	if codes[1].Description != "Laparoscopic appendectomy" {
		t.Errorf("expected description back-filled from the dictionary, got %q", codes[1].Description)
	}
	v := c.View()
	if len(v.Predictions) != 2 || v.Busy {
		t.Errorf("unexpected view after predict: %+v", v)
	}
}

func TestController_PredictEmptyResultIsNeutral(t *testing.T) {
	c := newTestController(&mockPredictor{resp: &prediction.Response{}}, nil, nil)
	if err := c.SetNote("nothing here", ""); err != nil {
		t.Fatal(err)
	}
	res, err := c.Predict(context.Background(), PredictOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(res.Codes) != 0 {
		t.Errorf("expected no codes")
	}
	if msg := c.View().Message; msg != prediction.NoCodesMessage {
		t.Errorf("expected %q, got %q", prediction.NoCodesMessage, msg)
	}
}

func TestController_PredictValidation(t *testing.T) {
	c := newTestController(nil, nil, nil)
	var verr *ValidationError
	if _, err := c.Predict(context.Background(), PredictOptions{}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for empty note, got %v", err)
	}
	_ = c.SetNote(testNote, "")
	if _, err := c.Predict(context.Background(), PredictOptions{Backend: "gpu"}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for unknown backend, got %v", err)
	}
	if _, err := c.Predict(context.Background(), PredictOptions{ICDVersion: "11"}); !errors.As(err, &verr) {
		t.Errorf("expected validation error for ICD version, got %v", err)
	}
	_ = c.SwitchMode(ModeReview)
	_, err := c.Predict(context.Background(), PredictOptions{})
	if !errors.As(err, &verr) || !verr.Conflict {
		t.Errorf("expected mode conflict, got %v", err)
	}
}

func TestController_PredictFailureClearsPredictions(t *testing.T) {
	p := &mockPredictor{resp: sampleResponse()}
	c := newTestController(p, nil, nil)
	predicted(t, c)

	p.err = errors.New("connection refused")
	_, err := c.Predict(context.Background(), PredictOptions{})
	var xerr *ExternalCallError
	if !errors.As(err, &xerr) || xerr.Op != "predict" {
		t.Fatalf("expected external call error, got %v", err)
	}
	v := c.View()
	if len(v.Predictions) != 0 {
		t.Errorf("expected predictions cleared, got %d", len(v.Predictions))
	}
	if !strings.Contains(v.Message, "connection refused") {
		t.Errorf("expected failure in message, got %q", v.Message)
	}
	if v.Busy {
		t.Error("expected in-flight flag cleared")
	}
}

func TestController_PredictDiscardedAfterModeSwitch(t *testing.T) {
	p := &mockPredictor{resp: sampleResponse(), started: make(chan struct{}), release: make(chan struct{})}
	c := newTestController(p, nil, nil)
	_ = c.SetNote(testNote, "")

	done := make(chan error, 1)
	go func() {
		_, err := c.Predict(context.Background(), PredictOptions{})
		done <- err
	}()
	<-p.started

	if !c.View().Busy {
		t.Error("expected session to be busy")
	}
	if err := c.SwitchMode(ModeReview); err != nil {
		t.Fatal(err)
	}
	close(p.release)

	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("expected stale response, got %v", err)
	}
	v := c.View()
	if v.Mode != ModeReview || len(v.Predictions) != 0 || v.Busy {
		t.Errorf("stale prediction leaked into view: %+v", v)
	}
}

func TestController_SecondPredictRefused(t *testing.T) {
	p := &mockPredictor{resp: sampleResponse(), started: make(chan struct{}), release: make(chan struct{})}
	c := newTestController(p, nil, nil)
	_ = c.SetNote(testNote, "")

	done := make(chan error, 1)
	go func() {
		_, err := c.Predict(context.Background(), PredictOptions{})
		done <- err
	}()
	<-p.started

	if _, err := c.Predict(context.Background(), PredictOptions{}); !errors.Is(err, ErrRequestInFlight) {
		t.Errorf("expected in-flight refusal, got %v", err)
	}
	close(p.release)
	if err := <-done; err != nil {
		t.Fatalf("first predict: %v", err)
	}
	if n := len(c.View().Predictions); n != 2 {
		t.Errorf("expected 2 predictions, got %d", n)
	}
}

func TestController_SelectAndHighlights(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)

	if segs := c.Highlights(); len(segs) != 1 || segs[0].Highlighted {
		t.Errorf("expected one plain segment with nothing selected, got %+v", segs)
	}
	if err := c.Select([]string{"nope"}); err == nil {
		t.Error("expected unknown id to be rejected")
	}
	if err := c.Select([]string{codes[1].ID}); err != nil {
		t.Fatal(err)
	}
	var painted []string
	for _, s := range c.Highlights() {
		if s.Highlighted {
			painted = append(painted, s.Text)
		}
	}
	if len(painted) != 1 || painted[0] != "laparoscopic appendectomy" {
		t.Errorf("unexpected highlights %q", painted)
	}
	if v := c.View(); len(v.Selected) != 1 || v.Selected[0] != codes[1].ID {
		t.Errorf("unexpected selection %v", v.Selected)
	}
}

func TestController_ToggleExpanded(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)
	if err := c.ToggleExpanded(codes[0].ID); err != nil {
		t.Fatal(err)
	}
	if !c.View().Predictions[0].Expanded {
		t.Error("expected expanded")
	}
}

func TestController_PromoteAndDuplicates(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)

	if err := c.Promote(codes[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := c.Promote(codes[0].ID); !errors.Is(err, curation.ErrDuplicateCode) {
		t.Errorf("expected duplicate error, got %v", err)
	}
	if _, err := c.PromoteSelected(); err == nil {
		t.Error("expected error with nothing selected")
	}
	_ = c.Select([]string{codes[0].ID, codes[1].ID})
	n, err := c.PromoteSelected()
	if err != nil || n != 1 {
		t.Errorf("expected 1 added, got %d (%v)", n, err)
	}
	v := c.View()
	if v.Counts.ICD != 1 || v.Counts.CPT != 1 || v.Counts.Total != 2 {
		t.Errorf("unexpected counts %+v", v.Counts)
	}
}

func TestController_AddManual(t *testing.T) {
	c := newTestController(nil, nil, nil)
	_ = c.SetNote(testNote, "")

	err := c.AddManual(context.Background(), ManualEntry{Code: "K35.2", Type: "ICD", ICDVersion: "10", Evidence: "Acute Appendicitis"})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.AddManual(context.Background(), ManualEntry{Code: "ZZZ99", Type: "cpt", Evidence: "not in note"}); err != nil {
		t.Fatalf("codes outside the dictionary are accepted: %v", err)
	}
	if err := c.AddManual(context.Background(), ManualEntry{Code: " "}); err == nil {
		t.Error("expected empty code to be rejected")
	}
	if err := c.AddManual(context.Background(), ManualEntry{Code: "X", Type: "hcpcs"}); err == nil {
		t.Error("expected unknown type to be rejected")
	}

	got := c.View().Finalized
	if len(got) != 2 {
		t.Fatalf("expected 2 codes, got %d", len(got))
	}
	if got[0].Description != "Acute appendicitis with generalized peritonitis" {
		t.Errorf("expected dictionary description, got %q", got[0].Description)
	}
	if len(got[0].Spans) != 1 || got[0].Spans[0].Text != "acute appendicitis" {
		t.Errorf("expected evidence resolved in note casing, got %+v", got[0].Spans)
	}
	if got[1].Spans == nil || len(got[1].Spans) != 0 {
		t.Errorf("expected unresolved evidence to be dropped, got %+v", got[1].Spans)
	}
}

func TestController_EditRemove(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)
	_ = c.Promote(codes[0].ID)

	if err := c.BeginEdit(0); err != nil {
		t.Fatal(err)
	}
	if !c.View().Finalized[0].Editing {
		t.Error("expected editing flag")
	}
	if err := c.EditDescription(0, "  Appendicitis, acute  "); err != nil {
		t.Fatal(err)
	}
	f := c.View().Finalized[0]
	if f.Description != "Appendicitis, acute" || f.Editing {
		t.Errorf("unexpected entry after edit %+v", f)
	}
	if err := c.CancelEdit(5); !errors.Is(err, curation.ErrIndexOutOfRange) {
		t.Errorf("expected index error, got %v", err)
	}
	if err := c.RemoveCode("K35.80", "cpt"); !errors.Is(err, curation.ErrCodeNotFound) {
		t.Errorf("expected not found for wrong type, got %v", err)
	}
	if err := c.RemoveCode("K35.80", "icd"); err != nil {
		t.Fatal(err)
	}
	if len(c.View().Finalized) != 0 {
		t.Error("expected empty list")
	}
}

func TestController_FinalizedHighlightsTrackRevisions(t *testing.T) {
	c := newTestController(nil, nil, nil)
	codes := predicted(t, c)
	if segs := c.FinalizedHighlights(); len(segs) != 1 {
		t.Fatalf("expected plain note, got %+v", segs)
	}
	_ = c.Promote(codes[0].ID)
	segs := c.FinalizedHighlights()
	found := false
	for _, s := range segs {
		if s.Highlighted && s.Class == "icd:K35.80" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected new code to be painted, got %+v", segs)
	}
}

func TestController_FinalizeResetsAndKeepsMessage(t *testing.T) {
	f := newMockFolders()
	c := newTestController(nil, f, nil)
	codes := predicted(t, c)
	_ = c.Promote(codes[0].ID)
	_ = c.Promote(codes[1].ID)
	c.SetAdmissionID("ADM-42")

	res, err := c.Finalize(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Name != "ADM-42" || res.Counts.Total != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if len(f.saves) != 1 || f.saves[0].NoteFile != "adm-1.txt" || f.saves[0].UpdateExisting {
		t.Errorf("unexpected save request %+v", f.saves)
	}
	v := c.View()
	if v.Note != "" || len(v.Predictions) != 0 || len(v.Finalized) != 0 || v.AdmissionID != "" {
		t.Errorf("expected empty workspace, got %+v", v)
	}
	if v.Mode != ModePredict || !strings.Contains(v.Message, "ADM-42") {
		t.Errorf("expected success message to survive reset, got %q", v.Message)
	}
}

func TestController_FinalizeRequiresCodes(t *testing.T) {
	f := newMockFolders()
	c := newTestController(nil, f, nil)
	_ = c.SetNote(testNote, "")
	var verr *ValidationError
	if _, err := c.Finalize(context.Background(), "x"); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if f.saveCount() != 0 {
		t.Error("store must not be called")
	}
}

func TestController_FinalizeFailureKeepsState(t *testing.T) {
	f := newMockFolders()
	f.err = errors.New("disk full")
	c := newTestController(nil, f, nil)
	codes := predicted(t, c)
	_ = c.Promote(codes[0].ID)

	if _, err := c.Finalize(context.Background(), "adm"); err == nil {
		t.Fatal("expected error")
	}
	v := c.View()
	if len(v.Finalized) != 1 || v.Note == "" {
		t.Errorf("expected workspace kept, got %+v", v)
	}
	if !strings.Contains(v.Message, "disk full") {
		t.Errorf("unexpected message %q", v.Message)
	}
}

func reviewController(t *testing.T, f *mockFolders) *Controller {
	t.Helper()
	f.folders["ADM-1"] = storedFolder("ADM-1")
	f.folders["ADM-2"] = storedFolder("ADM-2")
	c := newTestController(nil, f, nil)
	if err := c.SwitchMode(ModeReview); err != nil {
		t.Fatal(err)
	}
	if _, err := c.ListFolders(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := c.LoadFolder(context.Background(), "ADM-1"); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestController_LoadFolder(t *testing.T) {
	c := reviewController(t, newMockFolders())
	v := c.View()
	if v.LoadedFolder != "ADM-1" || v.AdmissionID != "ADM-1" || v.HasChanges {
		t.Errorf("unexpected view %+v", v)
	}
	if len(v.Finalized) != 2 || v.Finalized[1].Spans[0].Start != 28 {
		t.Errorf("expected evidence resolved against the note, got %+v", v.Finalized)
	}
	if len(v.Folders) != 2 {
		t.Errorf("expected folder list, got %+v", v.Folders)
	}
}

func TestController_LoadFolderFailureUnloads(t *testing.T) {
	c := reviewController(t, newMockFolders())
	err := c.LoadFolder(context.Background(), "missing")
	var xerr *ExternalCallError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected external error, got %v", err)
	}
	v := c.View()
	if v.LoadedFolder != "" || v.Note != "" || len(v.Finalized) != 0 {
		t.Errorf("expected unloaded workspace, got %+v", v)
	}
}

func TestController_SaveWithoutChangesSkipsStore(t *testing.T) {
	f := newMockFolders()
	c := reviewController(t, f)
	out, err := c.Save(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Saved || out.Message != NoChangesMessage {
		t.Errorf("unexpected outcome %+v", out)
	}
	if f.saveCount() != 0 {
		t.Errorf("expected no store call, got %d", f.saveCount())
	}
}

func TestController_SaveEdits(t *testing.T) {
	f := newMockFolders()
	c := reviewController(t, f)
	_ = c.EditDescription(0, "Type 2 diabetes mellitus without complications")

	summary, changed, err := c.Changes()
	if err != nil || !changed || len(summary.Modified) != 1 {
		t.Fatalf("unexpected changes %+v %v %v", summary, changed, err)
	}
	out, err := c.Save(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Saved || out.Renamed {
		t.Errorf("unexpected outcome %+v", out)
	}
	req := f.saves[0]
	if !req.UpdateExisting || req.OldName != "ADM-1" || req.Name != "ADM-1" {
		t.Errorf("unexpected request %+v", req)
	}
	if c.View().HasChanges {
		t.Error("expected snapshot to be refreshed after save")
	}
}

func TestController_SaveRenameReloadsList(t *testing.T) {
	f := newMockFolders()
	c := reviewController(t, f)
	listsBefore := f.lists

	out, err := c.Save(context.Background(), "ADM-9")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Renamed {
		t.Errorf("expected rename, got %+v", out)
	}
	if f.lists != listsBefore+1 {
		t.Errorf("expected folder list to be reloaded")
	}
	v := c.View()
	if v.LoadedFolder != "ADM-9" || v.HasChanges {
		t.Errorf("unexpected view %+v", v)
	}
	names := []string{}
	for _, s := range v.Folders {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "ADM-2,ADM-9" {
		t.Errorf("unexpected folder list %v", names)
	}
}

func TestController_DeleteLoadedFolderUnloads(t *testing.T) {
	c := reviewController(t, newMockFolders())
	if err := c.DeleteFolder(context.Background(), "ADM-1"); err != nil {
		t.Fatal(err)
	}
	v := c.View()
	if v.LoadedFolder != "" || v.Note != "" || len(v.Finalized) != 0 {
		t.Errorf("expected unloaded workspace, got %+v", v)
	}
	if len(v.Folders) != 1 || v.Folders[0].Name != "ADM-2" {
		t.Errorf("unexpected folders %+v", v.Folders)
	}
}

func TestController_DeleteOtherFolderKeepsWorkspace(t *testing.T) {
	c := reviewController(t, newMockFolders())
	if err := c.DeleteFolder(context.Background(), "ADM-2"); err != nil {
		t.Fatal(err)
	}
	if v := c.View(); v.LoadedFolder != "ADM-1" {
		t.Errorf("expected ADM-1 still loaded, got %q", v.LoadedFolder)
	}
}

func TestController_DeleteAllFolders(t *testing.T) {
	c := reviewController(t, newMockFolders())
	n, err := c.DeleteAllFolders(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deleted, got %d (%v)", n, err)
	}
	v := c.View()
	if v.LoadedFolder != "" || len(v.Folders) != 0 {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestController_SwitchModeClearsSession(t *testing.T) {
	c := reviewController(t, newMockFolders())
	if err := c.SwitchMode(ModePredict); err != nil {
		t.Fatal(err)
	}
	v := c.View()
	if v.LoadedFolder != "" || len(v.Folders) != 0 || len(v.Finalized) != 0 || v.Note != "" {
		t.Errorf("expected cleared session, got %+v", v)
	}
	if err := c.SwitchMode("archive"); err == nil {
		t.Error("expected unknown mode to be rejected")
	}
}

func TestController_ReviewOperationsNeedReviewMode(t *testing.T) {
	c := newTestController(nil, nil, nil)
	var verr *ValidationError
	if _, err := c.ListFolders(context.Background(), ""); !errors.As(err, &verr) || !verr.Conflict {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := c.Save(context.Background(), "x"); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, _, err := c.Changes(); !errors.As(err, &verr) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestController_Models(t *testing.T) {
	c := newTestController(nil, nil, nil)
	models, err := c.Models(context.Background())
	if err != nil || len(models) != 1 {
		t.Errorf("unexpected models %v (%v)", models, err)
	}
	methods, err := c.ExplainMethods(context.Background())
	if err != nil || len(methods) != 2 {
		t.Errorf("unexpected methods %v (%v)", methods, err)
	}
}

func TestController_ResetKeepsMode(t *testing.T) {
	c := newTestController(nil, nil, nil)
	predicted(t, c)
	c.Reset()
	v := c.View()
	if v.Mode != ModePredict || v.Note != "" || len(v.Predictions) != 0 {
		t.Errorf("unexpected view %+v", v)
	}
}

func TestWithDebounceIgnoresNegative(t *testing.T) {
	c := NewController(&mockPredictor{}, newMockFolders(), newSearcher(), WithDebounce(-time.Second), WithSearchLimit(0))
	if c.debounce != defaultDebounce || c.searchLimit != defaultSearchLimit {
		t.Errorf("unexpected options %v %d", c.debounce, c.searchLimit)
	}
}

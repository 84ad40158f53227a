package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/domain/evidence"
	"github.com/ehr/codeassist/internal/domain/folder"
	"github.com/ehr/codeassist/internal/domain/highlight"
	"github.com/ehr/codeassist/internal/domain/prediction"
	"github.com/ehr/codeassist/internal/domain/review"
	"github.com/ehr/codeassist/internal/domain/terminology"
)

// Predictor is the prediction bridge.
type Predictor interface {
	Predict(ctx context.Context, req prediction.Request) (*prediction.Response, prediction.Request, error)
	Models(ctx context.Context) ([]string, error)
	ExplainMethods(ctx context.Context) ([]string, error)
}

// CodeSearcher is the code dictionary.
type CodeSearcher interface {
	Search(ctx context.Context, system terminology.System, query string, limit int) ([]*terminology.Code, error)
	Describe(ctx context.Context, system terminology.System, code string) string
}

const (
	defaultDebounce    = 250 * time.Millisecond
	defaultSearchLimit = 20
)

// Controller runs one user's Predict/Review workspace. State changes happen
// under mu; collaborator calls run outside it, fenced by the in-flight flag
// and checked against the epoch captured when they were issued.
type Controller struct {
	predictor Predictor
	folders   folder.Store
	searcher  CodeSearcher
	logger    zerolog.Logger

	debounce    time.Duration
	searchLimit int

	mu sync.Mutex
	st state
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithDebounce sets how long a lookup waits for a newer query before it
// reaches the dictionary.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

func WithSearchLimit(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

func NewController(p Predictor, folders folder.Store, searcher CodeSearcher, opts ...Option) *Controller {
	c := &Controller{
		predictor:   p,
		folders:     folders,
		searcher:    searcher,
		logger:      zerolog.Nop(),
		debounce:    defaultDebounce,
		searchLimit: defaultSearchLimit,
		st:          newState(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// View returns a snapshot of the workspace.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.view()
}

// ticket identifies an outstanding collaborator call.
type ticket struct {
	op    string
	epoch uint64
}

// begin must be called with mu held.
func (c *Controller) begin(op string) (ticket, error) {
	if c.st.inFlight != "" {
		return ticket{}, fmt.Errorf("%s: %w (%s)", op, ErrRequestInFlight, c.st.inFlight)
	}
	c.st.inFlight = op
	return ticket{op: op, epoch: c.st.epoch}, nil
}

// complete must be called with mu held. It reports whether the response
// still belongs to the current workspace.
func (c *Controller) complete(t ticket) bool {
	c.st.inFlight = ""
	if t.epoch != c.st.epoch {
		c.logger.Debug().Str("op", t.op).Uint64("issued", t.epoch).Uint64("current", c.st.epoch).
			Msg("discarding stale response")
		return false
	}
	return true
}

func (c *Controller) requireMode(op string, m Mode) error {
	if c.st.mode != m {
		return wrongMode(op, m)
	}
	return nil
}

// SwitchMode moves to m and clears every session-scoped value. Switching to
// the current mode is a no-op.
func (c *Controller) SwitchMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return invalid("switch mode", err.Error())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.mode == m {
		return nil
	}
	c.st.clearSession()
	c.st.mode = m
	c.st.message = ""
	return nil
}

// Reset returns the current mode to its empty state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.clearSession()
	c.st.message = ""
}

// SetNote replaces the note. Line endings are normalized, predictions and
// curated codes are dropped, and outstanding requests are invalidated.
func (c *Controller) SetNote(text, file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireMode("set note", ModePredict); err != nil {
		return err
	}
	c.st.clearPredictions()
	c.st.codes.Reset()
	c.st.note = evidence.NormalizeNewlines(text)
	c.st.noteFile = strings.TrimSpace(file)
	c.st.message = ""
	c.st.epoch++
	return nil
}

func (c *Controller) ClearNote() error {
	return c.SetNote("", "")
}

// SetAdmissionID records the folder name used by Finalize and Save.
func (c *Controller) SetAdmissionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.admissionID = strings.TrimSpace(id)
}

// PredictOptions selects the backend for one prediction.
type PredictOptions struct {
	Backend             prediction.Source `json:"backend"`
	Model               string            `json:"model,omitempty"`
	ExplainMethod       string            `json:"explain_method,omitempty"`
	ConfidenceThreshold float64           `json:"confidence_threshold,omitempty"`
	ICDVersion          string            `json:"icd_version,omitempty"`
}

// Predict sends the note to the chosen backend and replaces the prediction
// list with the result. An empty result is not an error; its message is
// reported instead. On failure the prediction list is left empty.
func (c *Controller) Predict(ctx context.Context, opts PredictOptions) (*prediction.Result, error) {
	const op = "predict"
	if opts.Backend == "" {
		opts.Backend = prediction.SourceLocal
	}
	if _, err := prediction.ParseSource(string(opts.Backend)); err != nil {
		return nil, invalid(op, err.Error())
	}
	if v := strings.TrimSpace(opts.ICDVersion); v != "" && v != "9" && v != "10" {
		return nil, invalid(op, fmt.Sprintf("unsupported ICD version %q", opts.ICDVersion))
	}
	if opts.ConfidenceThreshold < 0 || opts.ConfidenceThreshold > 1 {
		return nil, invalid(op, "confidence threshold must be within [0,1]")
	}

	c.mu.Lock()
	if err := c.requireMode(op, ModePredict); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	note := c.st.note
	if strings.TrimSpace(note) == "" {
		c.mu.Unlock()
		return nil, invalid(op, "note is empty")
	}
	t, err := c.begin(op)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.st.clearPredictions()
	c.st.message = ""
	c.mu.Unlock()

	req := prediction.Request{
		Note:                note,
		Backend:             opts.Backend,
		Model:               strings.TrimSpace(opts.Model),
		ExplainMethod:       strings.TrimSpace(opts.ExplainMethod),
		ConfidenceThreshold: opts.ConfidenceThreshold,
		ICDVersion:          strings.TrimSpace(opts.ICDVersion),
	}
	resp, effective, callErr := c.predictor.Predict(ctx, req)
	var res prediction.Result
	if callErr == nil {
		res = prediction.Ingest(note, resp, effective)
		c.backfillDescriptions(ctx, res.Codes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return nil, ErrStaleResponse
	}
	if callErr != nil {
		c.st.clearPredictions()
		c.st.message = "Prediction failed: " + callErr.Error()
		c.logger.Warn().Err(callErr).Str("backend", string(opts.Backend)).Msg("prediction failed")
		return nil, &ExternalCallError{Op: op, Err: callErr}
	}

	c.st.predictions = res.Codes
	c.st.reasoning = res.Reasoning
	c.st.predictSegs = nil
	if len(res.Codes) == 0 {
		c.st.message = res.Message
	} else {
		c.st.message = fmt.Sprintf("Predicted %d code(s).", len(res.Codes))
	}
	c.logger.Info().Str("backend", string(effective.Backend)).Int("codes", len(res.Codes)).Msg("prediction applied")
	return &res, nil
}

// backfillDescriptions fills empty descriptions from the code dictionary.
func (c *Controller) backfillDescriptions(ctx context.Context, codes []prediction.PredictedCode) {
	if c.searcher == nil {
		return
	}
	for i := range codes {
		if codes[i].Description != "" {
			continue
		}
		sys := terminology.SystemFor(codes[i].CodeType, codes[i].ICDVersion)
		codes[i].Description = c.searcher.Describe(ctx, sys, codes[i].Code)
	}
}

// Models lists the models the prediction bridge offers.
func (c *Controller) Models(ctx context.Context) ([]string, error) {
	models, err := c.predictor.Models(ctx)
	if err != nil {
		return nil, &ExternalCallError{Op: "list models", Err: err}
	}
	return models, nil
}

// ExplainMethods lists the attribution methods the local backend supports.
func (c *Controller) ExplainMethods(ctx context.Context) ([]string, error) {
	methods, err := c.predictor.ExplainMethods(ctx)
	if err != nil {
		return nil, &ExternalCallError{Op: "list explain methods", Err: err}
	}
	return methods, nil
}

// Select replaces the selection set with ids, which must all name current
// predictions.
func (c *Controller) Select(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sel := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := c.st.prediction(id); !ok {
			return invalid("select", fmt.Sprintf("unknown predicted code %q", id))
		}
		sel[id] = true
	}
	c.st.selected = sel
	c.st.predictSegs = nil
	return nil
}

// ToggleExpanded flips the display flag of one prediction.
func (c *Controller) ToggleExpanded(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.st.prediction(id)
	if !ok {
		return invalid("toggle", fmt.Sprintf("unknown predicted code %q", id))
	}
	c.st.predictions[i].Expanded = !c.st.predictions[i].Expanded
	return nil
}

// Highlights composes the spans of the selected predictions, in prediction
// order, over the note.
func (c *Controller) Highlights() []highlight.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.predictSegs == nil {
		var sel []prediction.PredictedCode
		for _, p := range c.st.predictions {
			if c.st.selected[p.ID] {
				sel = append(sel, p)
			}
		}
		c.st.predictSegs = highlight.Compose(c.st.note, highlight.TagCodes(sel))
	}
	return append([]highlight.Segment(nil), c.st.predictSegs...)
}

// FinalizedHighlights composes the spans of every curated code. The result
// is cached until the curation store changes.
func (c *Controller) FinalizedHighlights() []highlight.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev := c.st.codes.Revision()
	if !c.st.finalValid || c.st.finalRev != rev {
		c.st.finalSegs = highlight.Compose(c.st.note, highlight.TagCodes(c.st.codes.List()))
		c.st.finalRev = rev
		c.st.finalValid = true
	}
	return append([]highlight.Segment(nil), c.st.finalSegs...)
}

// Promote copies one prediction into the curated list.
func (c *Controller) Promote(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.st.prediction(id)
	if !ok {
		return invalid("promote", fmt.Sprintf("unknown predicted code %q", id))
	}
	if err := c.st.codes.Add(c.st.predictions[i].Finalize()); err != nil {
		c.st.message = err.Error()
		return err
	}
	c.st.message = ""
	return nil
}

// PromoteSelected copies every selected prediction into the curated list,
// skipping codes that are already there, and returns how many were added.
func (c *Controller) PromoteSelected() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.st.selected) == 0 {
		return 0, invalid("promote", "no codes selected")
	}
	added := 0
	for _, p := range c.st.predictions {
		if !c.st.selected[p.ID] {
			continue
		}
		err := c.st.codes.Add(p.Finalize())
		if errors.Is(err, curation.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return added, err
		}
		added++
	}
	c.st.message = fmt.Sprintf("Added %d code(s).", added)
	return added, nil
}

// ManualEntry is a code typed or picked from a lookup.
type ManualEntry struct {
	Code        string `json:"code"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Explanation string `json:"explanation,omitempty"`
	ICDVersion  string `json:"icd_version,omitempty"`
	// Evidence is an optional quote from the note supporting the code.
	Evidence string `json:"evidence,omitempty"`
}

// AddManual adds a code that did not come from a prediction. Codes absent
// from the dictionary are accepted; a missing description is filled from
// the dictionary when it knows the code.
func (c *Controller) AddManual(ctx context.Context, e ManualEntry) error {
	const op = "add code"
	e.Code = strings.TrimSpace(e.Code)
	if e.Code == "" {
		return invalid(op, "code is required")
	}
	e.Type = strings.ToLower(strings.TrimSpace(e.Type))
	if e.Type == "" {
		e.Type = curation.TypeICD
	}
	if e.Type != curation.TypeICD && e.Type != curation.TypeCPT {
		return invalid(op, fmt.Sprintf("unknown code type %q", e.Type))
	}
	if e.Type == curation.TypeCPT {
		e.ICDVersion = ""
	}
	e.Description = strings.TrimSpace(e.Description)
	if e.Description == "" && c.searcher != nil {
		e.Description = c.searcher.Describe(ctx, terminology.SystemFor(e.Type, e.ICDVersion), e.Code)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	spans := []evidence.Span{}
	if ev := strings.TrimSpace(e.Evidence); ev != "" {
		if s, ok := evidence.ResolveItem(c.st.note, evidence.NewSpanInput(-1, -1, ev)); ok {
			spans = append(spans, s)
		}
	}
	err := c.st.codes.Add(curation.FinalizedCode{
		Code:        e.Code,
		Description: e.Description,
		Explanation: strings.TrimSpace(e.Explanation),
		Type:        e.Type,
		Spans:       spans,
		ICDVersion:  strings.TrimSpace(e.ICDVersion),
	})
	if err != nil {
		c.st.message = err.Error()
		return err
	}
	c.st.message = ""
	return nil
}

func (c *Controller) RemoveCode(code, codeType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.codes.Remove(code, codeType)
}

func (c *Controller) EditDescription(index int, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.codes.Edit(index, description)
}

func (c *Controller) BeginEdit(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.codes.BeginEdit(index)
}

func (c *Controller) CancelEdit(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.codes.CancelEdit(index)
}

// Finalize writes the note and curated codes to a new folder named after
// name (or the admission id when name is empty), then resets the Predict
// workspace. The success message survives the reset.
func (c *Controller) Finalize(ctx context.Context, name string) (*folder.SaveResult, error) {
	const op = "finalize"
	c.mu.Lock()
	if err := c.requireMode(op, ModePredict); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if strings.TrimSpace(c.st.note) == "" {
		c.mu.Unlock()
		return nil, invalid(op, "note is empty")
	}
	if c.st.codes.Len() == 0 {
		c.mu.Unlock()
		return nil, invalid(op, "no codes selected")
	}
	if strings.TrimSpace(name) == "" {
		name = c.st.admissionID
	}
	req := folder.SaveRequest{
		Name:     strings.TrimSpace(name),
		NoteText: c.st.note,
		NoteFile: c.st.noteFile,
		Codes:    folder.FromFinalizedAll(c.st.codes.List()),
	}
	t, err := c.begin(op)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	res, callErr := c.folders.Save(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return nil, ErrStaleResponse
	}
	if callErr != nil {
		c.st.message = "Save failed: " + callErr.Error()
		return nil, &ExternalCallError{Op: op, Err: callErr}
	}
	c.st.clearSession()
	c.st.message = fmt.Sprintf("Saved %d code(s) to %s.", res.Counts.Total, res.Name)
	c.logger.Info().Str("folder", res.Name).Int("codes", res.Counts.Total).Msg("codes finalized")
	return res, nil
}

// ListFolders refreshes the folder list, filtered by a case-insensitive
// name substring. On failure the list is emptied.
func (c *Controller) ListFolders(ctx context.Context, filter string) ([]folder.Summary, error) {
	const op = "list folders"
	c.mu.Lock()
	if err := c.requireMode(op, ModeReview); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	t, err := c.begin(op)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	folders, callErr := c.folders.List(ctx, filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return nil, ErrStaleResponse
	}
	return c.applyFolderList(filter, folders, callErr)
}

// applyFolderList must be called with mu held.
func (c *Controller) applyFolderList(filter string, folders []folder.Summary, err error) ([]folder.Summary, error) {
	if err != nil {
		c.st.folders = nil
		c.st.message = "Could not list folders: " + err.Error()
		return nil, &ExternalCallError{Op: "list folders", Err: err}
	}
	if folders == nil {
		folders = []folder.Summary{}
	}
	c.st.folders = folders
	c.st.filter = strings.TrimSpace(filter)
	return append([]folder.Summary(nil), folders...), nil
}

// LoadFolder replaces the note and curated codes with a persisted folder
// and snapshots it for change detection. On failure the workspace is left
// unloaded.
func (c *Controller) LoadFolder(ctx context.Context, name string) error {
	const op = "load folder"
	if strings.TrimSpace(name) == "" {
		return invalid(op, "folder name is required")
	}
	c.mu.Lock()
	if err := c.requireMode(op, ModeReview); err != nil {
		c.mu.Unlock()
		return err
	}
	t, err := c.begin(op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	f, callErr := c.folders.Load(ctx, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return ErrStaleResponse
	}
	c.st.unload()
	c.st.note, c.st.noteFile = "", ""
	c.st.codes.Reset()
	c.st.admissionID = ""
	if callErr != nil {
		c.st.message = "Could not load folder: " + callErr.Error()
		return &ExternalCallError{Op: op, Err: callErr}
	}

	c.st.note = evidence.NormalizeNewlines(f.NoteText)
	c.st.noteFile = f.NoteFile
	c.st.codes.Replace(f.FinalizedCodes())
	c.st.loaded = f.Name
	c.st.admissionID = f.Name
	c.st.snapshot = review.Take(c.st.codes.List(), f.Name)
	c.st.message = fmt.Sprintf("Loaded %s.", f.Name)
	return nil
}

// Changes reports whether the loaded folder differs from its snapshot and
// what changed.
func (c *Controller) Changes() (review.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st.loaded == "" {
		return review.Summary{}, false, invalid("changes", "no folder loaded")
	}
	current := c.st.codes.List()
	return c.st.snapshot.Diff(current, c.st.admissionID), c.st.snapshot.HasChanges(current, c.st.admissionID), nil
}

// SaveOutcome reports a review save.
type SaveOutcome struct {
	Saved   bool               `json:"saved"`
	Renamed bool               `json:"renamed"`
	Result  *folder.SaveResult `json:"result,omitempty"`
	Message string             `json:"message"`
}

// NoChangesMessage is reported when Save finds nothing to write.
const NoChangesMessage = "No changes to save."

// Save writes the loaded folder back under admissionID (empty keeps the
// current identifier). Nothing is written when there are no changes. A new
// identifier renames the folder and reloads the folder list.
func (c *Controller) Save(ctx context.Context, admissionID string) (*SaveOutcome, error) {
	const op = "save"
	c.mu.Lock()
	if err := c.requireMode(op, ModeReview); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.st.loaded == "" {
		c.mu.Unlock()
		return nil, invalid(op, "no folder loaded")
	}
	if id := strings.TrimSpace(admissionID); id != "" {
		c.st.admissionID = id
	}
	id := c.st.admissionID
	if id == "" {
		c.mu.Unlock()
		return nil, invalid(op, "admission id is required")
	}
	current := c.st.codes.List()
	if !c.st.snapshot.HasChanges(current, id) {
		c.st.message = NoChangesMessage
		c.mu.Unlock()
		return &SaveOutcome{Message: NoChangesMessage}, nil
	}
	if len(current) == 0 {
		c.mu.Unlock()
		return nil, invalid(op, "no codes to save")
	}
	req := folder.SaveRequest{
		Name:           id,
		OldName:        c.st.loaded,
		NoteText:       c.st.note,
		NoteFile:       c.st.noteFile,
		Codes:          folder.FromFinalizedAll(current),
		UpdateExisting: true,
	}
	filter := c.st.filter
	t, err := c.begin(op)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	res, callErr := c.folders.Save(ctx, req)
	var (
		folders []folder.Summary
		listErr error
	)
	if callErr == nil && res.Renamed {
		folders, listErr = c.folders.List(ctx, filter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return nil, ErrStaleResponse
	}
	if callErr != nil {
		c.st.message = "Save failed: " + callErr.Error()
		return nil, &ExternalCallError{Op: op, Err: callErr}
	}

	c.st.loaded = res.Name
	c.st.admissionID = res.Name
	c.st.snapshot = review.Take(current, res.Name)
	out := &SaveOutcome{Saved: true, Renamed: res.Renamed, Result: res}
	if res.Renamed {
		out.Message = fmt.Sprintf("Saved and renamed to %s.", res.Name)
		if _, err := c.applyFolderList(filter, folders, listErr); err != nil {
			out.Message += " " + c.st.message
		}
	} else {
		out.Message = fmt.Sprintf("Saved %s.", res.Name)
	}
	c.st.message = out.Message
	c.logger.Info().Str("folder", res.Name).Bool("renamed", res.Renamed).Msg("folder saved")
	return out, nil
}

// DeleteFolder deletes one folder. Deleting the loaded folder unloads the
// workspace.
func (c *Controller) DeleteFolder(ctx context.Context, name string) error {
	const op = "delete folder"
	if strings.TrimSpace(name) == "" {
		return invalid(op, "folder name is required")
	}
	t, err := c.beginReview(op)
	if err != nil {
		return err
	}

	callErr := c.folders.Delete(ctx, name)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return ErrStaleResponse
	}
	if callErr != nil {
		c.st.message = "Delete failed: " + callErr.Error()
		return &ExternalCallError{Op: op, Err: callErr}
	}
	kept := c.st.folders[:0:0]
	for _, f := range c.st.folders {
		if f.Name != name {
			kept = append(kept, f)
		}
	}
	c.st.folders = kept
	if c.st.loaded == name {
		c.st.unload()
	}
	c.st.message = fmt.Sprintf("Deleted %s.", name)
	return nil
}

// DeleteAllFolders deletes every folder and unloads the workspace.
func (c *Controller) DeleteAllFolders(ctx context.Context) (int, error) {
	const op = "delete all folders"
	t, err := c.beginReview(op)
	if err != nil {
		return 0, err
	}

	n, callErr := c.folders.DeleteAll(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.complete(t) {
		return n, ErrStaleResponse
	}
	if callErr != nil {
		c.st.message = "Delete failed: " + callErr.Error()
		return n, &ExternalCallError{Op: op, Err: callErr}
	}
	c.st.folders = []folder.Summary{}
	c.st.unload()
	c.st.message = fmt.Sprintf("Deleted %d folder(s).", n)
	return n, nil
}

func (c *Controller) beginReview(op string) (ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireMode(op, ModeReview); err != nil {
		return ticket{}, err
	}
	return c.begin(op)
}

package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ehr/codeassist/internal/domain/evidence"
	"github.com/ehr/codeassist/internal/domain/folder"
	"github.com/ehr/codeassist/internal/domain/prediction"
	"github.com/ehr/codeassist/internal/domain/terminology"
)

const testNote = "Patient has acute appendicitis.\r\nPlan: laparoscopic appendectomy."

func probability(v float64) *float64 { return &v }

func sampleResponse() *prediction.Response {
	return &prediction.Response{
		ICDCodes: []prediction.CodeInput{{
			Code:          "K35.80",
			Description:   "Acute appendicitis",
			Probability:   probability(0.91),
			EvidenceSpans: []evidence.SpanInput{evidence.NewSpanInput(-1, -1, "acute appendicitis")},
		}},
		CPTCodes: []prediction.CodeInput{{
			Code:          "44970",
			Probability:   probability(0.77),
			EvidenceSpans: []evidence.SpanInput{evidence.NewSpanInput(-1, -1, "laparoscopic appendectomy")},
		}},
	}
}

type mockPredictor struct {
	mu      sync.Mutex
	resp    *prediction.Response
	err     error
	calls   []prediction.Request
	started chan struct{}
	release chan struct{}
}

func (m *mockPredictor) Predict(ctx context.Context, req prediction.Request) (*prediction.Response, prediction.Request, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	started, release := m.started, m.release
	m.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, req, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, req, m.err
	}
	if m.resp == nil {
		return &prediction.Response{}, req, nil
	}
	return m.resp, req, nil
}

func (m *mockPredictor) Models(context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []string{"gpt-4o-mini"}, nil
}

func (m *mockPredictor) ExplainMethods(context.Context) ([]string, error) {
	return []string{"grad_attention", "integrated_gradients"}, nil
}

type mockSearcher struct {
	mu      sync.Mutex
	codes   []*terminology.Code
	queries []string
	// gates blocks the search for a query until the channel is closed.
	gates   map[string]chan struct{}
	started chan string
	err     error
}

func (m *mockSearcher) Search(_ context.Context, system terminology.System, query string, limit int) ([]*terminology.Code, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	gate := m.gates[query]
	m.mu.Unlock()
	if m.started != nil {
		m.started <- query
	}
	if gate != nil {
		<-gate
	}
	if m.err != nil {
		return nil, m.err
	}
	var out []*terminology.Code
	for _, c := range m.codes {
		if c.System == system && strings.Contains(strings.ToLower(c.Description), strings.ToLower(query)) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *mockSearcher) Describe(_ context.Context, system terminology.System, code string) string {
	for _, c := range m.codes {
		if c.System == system && c.Code == code {
			return c.Description
		}
	}
	return ""
}

func (m *mockSearcher) searched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

func newSearcher() *mockSearcher {
	return &mockSearcher{codes: []*terminology.Code{
		{Code: "K35.80", Description: "Unspecified acute appendicitis", System: terminology.SystemICD10},
		{Code: "K35.2", Description: "Acute appendicitis with generalized peritonitis", System: terminology.SystemICD10},
		{Code: "44970", Description: "Laparoscopic appendectomy", System: terminology.SystemCPT},
	}}
}

type mockFolders struct {
	mu      sync.Mutex
	folders map[string]*folder.Folder
	saves   []folder.SaveRequest
	lists   int
	err     error
}

func newMockFolders() *mockFolders {
	return &mockFolders{folders: map[string]*folder.Folder{}}
}

func (m *mockFolders) List(_ context.Context, filter string) ([]folder.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.err != nil {
		return nil, m.err
	}
	out := []folder.Summary{}
	for name, f := range m.folders {
		if strings.Contains(strings.ToLower(name), strings.ToLower(filter)) {
			out = append(out, folder.Summary{Name: name, NoteFile: f.NoteFile, CodeCounts: folder.CountPersisted(f.Codes)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockFolders) Load(_ context.Context, name string) (*folder.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	f, ok := m.folders[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, folder.ErrFolderNotFound)
	}
	cp := *f
	return &cp, nil
}

func (m *mockFolders) Save(_ context.Context, req folder.SaveRequest) (*folder.SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves = append(m.saves, req)
	if m.err != nil {
		return nil, m.err
	}
	name := req.Name
	if name == "" {
		name = "manual-note"
	}
	renamed := false
	if req.UpdateExisting && req.OldName != "" && req.OldName != name {
		delete(m.folders, req.OldName)
		renamed = true
	}
	m.folders[name] = &folder.Folder{Name: name, NoteText: req.NoteText, NoteFile: req.NoteFile, Codes: req.Codes}
	return &folder.SaveResult{Name: name, Counts: folder.CountPersisted(req.Codes), Renamed: renamed}, nil
}

func (m *mockFolders) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[name]; !ok {
		return fmt.Errorf("%s: %w", name, folder.ErrFolderNotFound)
	}
	delete(m.folders, name)
	return nil
}

func (m *mockFolders) DeleteAll(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.folders)
	m.folders = map[string]*folder.Folder{}
	return n, nil
}

func (m *mockFolders) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func storedFolder(name string) *folder.Folder {
	note := "Pt with type 2 diabetes and hypertension."
	return &folder.Folder{
		Name:     name,
		NoteText: note,
		NoteFile: name + ".txt",
		Codes: []folder.PersistedCode{
			{Code: "E11.9", CodeType: "icd", Description: "Type 2 diabetes", Probability: probability(0.8),
				EvidenceSpans: []evidence.SpanInput{evidence.NewSpanInput(8, 23, "type 2 diabetes")}},
			{Code: "I10", CodeType: "icd", Description: "Essential hypertension",
				EvidenceSpans: []evidence.SpanInput{evidence.NewSpanInput(-1, -1, "hypertension")}},
		},
	}
}

package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is a read-mostly in-process dictionary, loaded from a
// description file or imported programmatically.
type MemoryRepo struct {
	mu      sync.RWMutex
	systems map[System][]*Code
	byCode  map[System]map[string]*Code
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		systems: make(map[System][]*Code),
		byCode:  make(map[System]map[string]*Code),
	}
}

// LoadDescriptionFile reads a JSON dictionary. Two layouts are accepted: a
// flat {"code": "description"} object, loaded into defaultSystem, or an
// object keyed by system name whose values are flat objects.
func LoadDescriptionFile(path string, defaultSystem System) (*MemoryRepo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read description file: %w", err)
	}
	return ParseDescriptions(data, defaultSystem)
}

// ParseDescriptions parses the layouts accepted by LoadDescriptionFile.
func ParseDescriptions(data []byte, defaultSystem System) (*MemoryRepo, error) {
	var sectioned map[string]map[string]string
	if err := json.Unmarshal(data, &sectioned); err == nil && len(sectioned) > 0 {
		repo := NewMemoryRepo()
		for name, entries := range sectioned {
			system, err := ParseSystem(name)
			if err != nil {
				return nil, err
			}
			repo.load(system, entries)
		}
		return repo, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse description file: %w", err)
	}
	repo := NewMemoryRepo()
	repo.load(defaultSystem, flat)
	return repo, nil
}

func (m *MemoryRepo) load(system System, entries map[string]string) {
	codes := make([]*Code, 0, len(entries))
	for code, desc := range entries {
		codes = append(codes, &Code{Code: strings.TrimSpace(code), Description: strings.TrimSpace(desc)})
	}
	_, _ = m.Import(context.Background(), system, codes)
}

// Import replaces the codes of one system.
func (m *MemoryRepo) Import(_ context.Context, system System, codes []*Code) (int64, error) {
	list := make([]*Code, 0, len(codes))
	index := make(map[string]*Code, len(codes))
	for _, c := range codes {
		if c == nil || strings.TrimSpace(c.Code) == "" {
			continue
		}
		cp := *c
		cp.System = system
		list = append(list, &cp)
		index[compact(cp.Code)] = &cp
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Code < list[j].Code })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems[system] = list
	m.byCode[system] = index
	return int64(len(list)), nil
}

// Len returns the number of codes loaded for a system.
func (m *MemoryRepo) Len(system System) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.systems[system])
}

// Codes returns a copy of every code loaded for a system, ordered by code.
func (m *MemoryRepo) Codes(system System) []*Code {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Code, len(m.systems[system]))
	for i, c := range m.systems[system] {
		cp := *c
		out[i] = &cp
	}
	return out
}

func (m *MemoryRepo) Search(_ context.Context, system System, query string, limit int) ([]*Code, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(strings.TrimSpace(query))
	qc := compact(q)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var prefixed, rest []*Code
	for _, c := range m.systems[system] {
		code := strings.ToLower(c.Code)
		cc := compact(c.Code)
		switch {
		case strings.HasPrefix(code, q) || (qc != "" && strings.HasPrefix(cc, qc)):
			prefixed = append(prefixed, c)
		case strings.Contains(code, q) || (qc != "" && strings.Contains(cc, qc)) ||
			strings.Contains(strings.ToLower(c.Description), q):
			rest = append(rest, c)
		}
		if len(prefixed) >= limit {
			break
		}
	}

	results := append(prefixed, rest...)
	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]*Code, len(results))
	for i, c := range results {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}

func (m *MemoryRepo) GetByCode(_ context.Context, system System, code string) (*Code, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byCode[system][compact(code)]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", system, code, ErrCodeNotFound)
	}
	cp := *c
	return &cp, nil
}

package review

import (
	"sort"
	"strings"

	"github.com/ehr/codeassist/internal/domain/curation"
)

// normalized is the projection of a finalized code used for equality.
// Span boundaries are reduced to a count.
type normalized struct {
	Code        string
	Type        string
	Description string
	Explanation string
	Probability *float64
	ICDVersion  string
	SpansCount  int
}

func (n normalized) key() Key { return Key{Code: n.Code, Type: n.Type} }

func (n normalized) equal(o normalized) bool {
	if n.Code != o.Code || n.Type != o.Type || n.Description != o.Description ||
		n.Explanation != o.Explanation || n.ICDVersion != o.ICDVersion || n.SpansCount != o.SpansCount {
		return false
	}
	if n.Probability == nil || o.Probability == nil {
		return n.Probability == nil && o.Probability == nil
	}
	return *n.Probability == *o.Probability
}

func normalize(codes []curation.FinalizedCode) []normalized {
	out := make([]normalized, len(codes))
	for i, c := range codes {
		out[i] = normalized{
			Code:        strings.TrimSpace(c.Code),
			Type:        strings.ToLower(strings.TrimSpace(c.Type)),
			Description: strings.TrimSpace(c.Description),
			Explanation: strings.TrimSpace(c.Explanation),
			Probability: c.Probability,
			ICDVersion:  strings.TrimSpace(c.ICDVersion),
			SpansCount:  len(c.Spans),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// HasChanges reports whether the live code list differs from the snapshot
// taken at load time. Order is irrelevant; evidence is compared by span
// count only.
func HasChanges(current []curation.FinalizedCode, currentID string, snapshot []curation.FinalizedCode, snapshotID string) bool {
	if strings.TrimSpace(currentID) != strings.TrimSpace(snapshotID) {
		return true
	}
	if len(current) != len(snapshot) {
		return true
	}
	a, b := normalize(current), normalize(snapshot)
	for i := range a {
		if !a[i].equal(b[i]) {
			return true
		}
	}
	return false
}

// Key identifies a code within a folder.
type Key struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

// Summary describes what changed between a snapshot and the live list.
type Summary struct {
	Renamed  bool   `json:"renamed"`
	OldName  string `json:"old_name,omitempty"`
	NewName  string `json:"new_name,omitempty"`
	Added    []Key  `json:"added"`
	Removed  []Key  `json:"removed"`
	Modified []Key  `json:"modified"`
}

// Empty reports whether the summary records no change at all.
func (s Summary) Empty() bool {
	return !s.Renamed && len(s.Added) == 0 && len(s.Removed) == 0 && len(s.Modified) == 0
}

// Diff itemises the differences HasChanges detects. Codes are matched by
// (type, code) after normalization; results are sorted the same way.
func Diff(current []curation.FinalizedCode, currentID string, snapshot []curation.FinalizedCode, snapshotID string) Summary {
	s := Summary{Added: []Key{}, Removed: []Key{}, Modified: []Key{}}
	if cur, old := strings.TrimSpace(currentID), strings.TrimSpace(snapshotID); cur != old {
		s.Renamed, s.OldName, s.NewName = true, old, cur
	}

	before := make(map[Key]normalized, len(snapshot))
	for _, n := range normalize(snapshot) {
		if _, ok := before[n.key()]; !ok {
			before[n.key()] = n
		}
	}
	seen := make(map[Key]bool, len(current))
	for _, n := range normalize(current) {
		k := n.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		old, ok := before[k]
		switch {
		case !ok:
			s.Added = append(s.Added, k)
		case !old.equal(n):
			s.Modified = append(s.Modified, k)
		}
	}
	for _, n := range normalize(snapshot) {
		if k := n.key(); !seen[k] {
			seen[k] = true
			s.Removed = append(s.Removed, k)
		}
	}
	return s
}

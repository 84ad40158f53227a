package curation

import (
	"fmt"
	"strings"
)

// Store is the in-memory ledger of finalized codes. Entries are unique per
// (code, type), compared case-sensitively. Every mutation bumps Revision so
// callers can drop cached highlight compositions.
//
// Store is not safe for concurrent use; the workflow controller serialises
// access.
type Store struct {
	codes    []FinalizedCode
	revision uint64
}

func NewStore() *Store {
	return &Store{}
}

// Add appends a code. The store is unchanged on error.
func (s *Store) Add(c FinalizedCode) error {
	if strings.TrimSpace(c.Code) == "" {
		return ErrEmptyCode
	}
	if s.indexOf(c.Code, c.Type) >= 0 {
		return &DuplicateCodeError{Code: c.Code, Type: c.Type}
	}
	s.codes = append(s.codes, c.Clone())
	s.bump()
	return nil
}

// Contains reports whether (code, type) is already present.
func (s *Store) Contains(code, codeType string) bool {
	return s.indexOf(code, codeType) >= 0
}

// Remove deletes the entry for (code, type), keeping the order of the rest.
func (s *Store) Remove(code, codeType string) error {
	i := s.indexOf(code, codeType)
	if i < 0 {
		return fmt.Errorf("removing %s %s: %w", codeType, code, ErrCodeNotFound)
	}
	s.codes = append(s.codes[:i], s.codes[i+1:]...)
	s.bump()
	return nil
}

// Edit replaces the description of the entry at index and ends editing.
func (s *Store) Edit(index int, description string) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.codes[index].Description = strings.TrimSpace(description)
	s.codes[index].Editing = false
	s.bump()
	return nil
}

// BeginEdit flags the entry at index as being edited.
func (s *Store) BeginEdit(index int) error {
	return s.setEditing(index, true)
}

// CancelEdit clears the editing flag without touching the description.
func (s *Store) CancelEdit(index int) error {
	return s.setEditing(index, false)
}

func (s *Store) setEditing(index int, editing bool) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	s.codes[index].Editing = editing
	s.bump()
	return nil
}

// List returns a deep copy of the entries in insertion order.
func (s *Store) List() []FinalizedCode {
	out := CloneAll(s.codes)
	if out == nil {
		out = []FinalizedCode{}
	}
	return out
}

// Replace swaps the whole ledger, e.g. when a review folder is loaded.
// Later duplicates of a (code, type) pair are dropped.
func (s *Store) Replace(codes []FinalizedCode) {
	s.codes = nil
	for _, c := range codes {
		if s.indexOf(c.Code, c.Type) >= 0 {
			continue
		}
		c = c.Clone()
		c.Editing = false
		s.codes = append(s.codes, c)
	}
	s.bump()
}

// Reset empties the ledger.
func (s *Store) Reset() {
	s.codes = nil
	s.bump()
}

func (s *Store) Len() int { return len(s.codes) }

func (s *Store) Revision() uint64 { return s.revision }

func (s *Store) indexOf(code, codeType string) int {
	for i, c := range s.codes {
		if c.Code == code && c.Type == codeType {
			return i
		}
	}
	return -1
}

func (s *Store) checkIndex(index int) error {
	if index < 0 || index >= len(s.codes) {
		return fmt.Errorf("index %d of %d: %w", index, len(s.codes), ErrIndexOutOfRange)
	}
	return nil
}

func (s *Store) bump() { s.revision++ }

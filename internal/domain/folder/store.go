package folder

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrFolderExists   = errors.New("folder already exists")
	ErrEmptyNote      = errors.New("note text cannot be empty")
	ErrNoCodes        = errors.New("provide at least one finalized code")
)

// Store persists review folders.
type Store interface {
	List(ctx context.Context, filter string) ([]Summary, error)
	Load(ctx context.Context, name string) (*Folder, error)
	Save(ctx context.Context, req SaveRequest) (*SaveResult, error)
	Delete(ctx context.Context, name string) error
	DeleteAll(ctx context.Context) (int, error)
}

func validate(req SaveRequest) error {
	if strings.TrimSpace(req.NoteText) == "" {
		return ErrEmptyNote
	}
	if len(req.Codes) == 0 {
		return ErrNoCodes
	}
	return nil
}

// matches reports whether name contains filter, ignoring case.
func matches(name, filter string) bool {
	filter = strings.TrimSpace(filter)
	return filter == "" || strings.Contains(strings.ToLower(name), strings.ToLower(filter))
}

// byRecency orders summaries most recent first, then by name.
func byRecency(a, b Summary) int {
	if c := b.GeneratedAt.Compare(a.GeneratedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Name, b.Name)
}

type clock func() time.Time

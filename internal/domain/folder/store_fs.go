package folder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// metadataFile holds the folder's structured contents.
const metadataFile = "codes.json"

type metadata struct {
	Name        string          `json:"name"`
	NoteFile    string          `json:"note_file"`
	GeneratedAt time.Time       `json:"generated_at"`
	Codes       []PersistedCode `json:"codes"`
}

// FSStore keeps one directory per folder under root:
//
//	<root>/<name>/<note file>
//	<root>/<name>/finalized_codes.txt
//	<root>/<name>/codes.json
//
// A mutex serializes writers across sessions sharing the store.
type FSStore struct {
	root string
	now  clock
	mu   sync.Mutex
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", root, err)
	}
	return &FSStore{root: root, now: time.Now}, nil
}

func (s *FSStore) dir(name string) (string, error) {
	if name == "" || name != Sanitize(name) {
		return "", fmt.Errorf("%q: %w", name, ErrFolderNotFound)
	}
	return filepath.Join(s.root, name), nil
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (s *FSStore) List(ctx context.Context, filter string) ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	out := []Summary{}
	for _, e := range entries {
		if !e.IsDir() || !matches(e.Name(), filter) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := s.read(e.Name())
		if err != nil {
			// Directories that are not folders (no note, no codes) are skipped.
			continue
		}
		out = append(out, Summary{
			Name:        f.Name,
			GeneratedAt: f.GeneratedAt,
			CodeCounts:  CountPersisted(f.Codes),
			NoteFile:    f.NoteFile,
		})
	}
	slices.SortFunc(out, byRecency)
	return out, nil
}

func (s *FSStore) Load(ctx context.Context, name string) (*Folder, error) {
	if _, err := s.dir(name); err != nil {
		return nil, err
	}
	return s.read(name)
}

// read loads codes.json, falling back to finalized_codes.txt and the first
// text file for folders written without metadata.
func (s *FSStore) read(name string) (*Folder, error) {
	dir := filepath.Join(s.root, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", name, ErrFolderNotFound)
	}

	f := &Folder{Name: name, GeneratedAt: info.ModTime().UTC()}
	raw, err := os.ReadFile(filepath.Join(dir, metadataFile))
	switch {
	case err == nil:
		var meta metadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", name, metadataFile, err)
		}
		f.NoteFile = meta.NoteFile
		f.Codes = meta.Codes
		if !meta.GeneratedAt.IsZero() {
			f.GeneratedAt = meta.GeneratedAt
		}
	case errors.Is(err, fs.ErrNotExist):
		txt, err := os.ReadFile(filepath.Join(dir, CodesFile))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, ErrFolderNotFound)
		}
		f.Codes = ParseCodes(string(txt))
	default:
		return nil, fmt.Errorf("read %s/%s: %w", name, metadataFile, err)
	}

	if f.NoteFile == "" {
		f.NoteFile = findNoteFile(dir)
	}
	if f.NoteFile != "" {
		note, err := os.ReadFile(filepath.Join(dir, f.NoteFile))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read note %s/%s: %w", name, f.NoteFile, err)
		}
		f.NoteText = string(note)
	}
	if f.Codes == nil {
		f.Codes = []PersistedCode{}
	}
	return f, nil
}

func findNoteFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") && e.Name() != CodesFile {
			return e.Name()
		}
	}
	return ""
}

func (s *FSStore) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stem, noteFile := names(req, now)

	var (
		name    string
		renamed bool
		err     error
	)
	if req.UpdateExisting {
		name, renamed, err = s.prepareUpdate(req, stem)
	} else {
		name, err = s.reserve(stem)
	}
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.root, name)
	if old, err := s.read(name); err == nil && old.NoteFile != "" && old.NoteFile != noteFile {
		_ = os.Remove(filepath.Join(dir, old.NoteFile))
	}
	if err := s.writeFiles(dir, name, noteFile, req, now); err != nil {
		return nil, err
	}

	return &SaveResult{
		Name:       name,
		OutputPath: dir,
		NoteFile:   noteFile,
		CodesFile:  CodesFile,
		Counts:     CountPersisted(req.Codes),
		Renamed:    renamed,
	}, nil
}

// reserve creates the first free stem, stem-01, stem-02, ... directory.
func (s *FSStore) reserve(stem string) (string, error) {
	for n := 0; n < maxCandidates; n++ {
		name := candidate(stem, n)
		err := os.Mkdir(filepath.Join(s.root, name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("create folder %s: %w", name, err)
		}
	}
	return "", fmt.Errorf("%s: %w", stem, ErrFolderExists)
}

// prepareUpdate resolves the target of an overwrite and performs the rename
// when the admission identifier changed.
func (s *FSStore) prepareUpdate(req SaveRequest, stem string) (string, bool, error) {
	old := strings.TrimSpace(req.OldName)
	if old == "" || old == stem {
		if err := os.MkdirAll(filepath.Join(s.root, stem), 0o755); err != nil {
			return "", false, fmt.Errorf("create folder %s: %w", stem, err)
		}
		return stem, false, nil
	}

	oldDir, err := s.dir(old)
	if err != nil {
		return "", false, err
	}
	if !exists(oldDir) {
		return "", false, fmt.Errorf("%s: %w", old, ErrFolderNotFound)
	}
	newDir := filepath.Join(s.root, stem)
	if exists(newDir) {
		return "", false, fmt.Errorf("%s: %w", stem, ErrFolderExists)
	}
	if err := os.Rename(oldDir, newDir); err != nil {
		return "", false, fmt.Errorf("rename folder %s to %s: %w", old, stem, err)
	}
	return stem, true, nil
}

func (s *FSStore) writeFiles(dir, name, noteFile string, req SaveRequest, now time.Time) error {
	if err := os.WriteFile(filepath.Join(dir, noteFile), []byte(req.NoteText), 0o644); err != nil {
		return fmt.Errorf("write note: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CodesFile), []byte(FormatCodes(req.Codes)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", CodesFile, err)
	}
	raw, err := json.MarshalIndent(metadata{Name: name, NoteFile: noteFile, GeneratedAt: now, Codes: req.Codes}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", metadataFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataFile), raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", metadataFile, err)
	}
	return nil
}

func (s *FSStore) Delete(ctx context.Context, name string) error {
	dir, err := s.dir(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !exists(dir) {
		return fmt.Errorf("%s: %w", name, ErrFolderNotFound)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete folder %s: %w", name, err)
	}
	return nil
}

// DeleteAll removes every folder directory under root and returns how many
// were removed. Stray files in root are left alone.
func (s *FSStore) DeleteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("read output dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return n, fmt.Errorf("delete folder %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

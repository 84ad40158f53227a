package folder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/codeassist/internal/domain/curation"
	"github.com/ehr/codeassist/internal/platform/db"
)

const uniqueViolation = "23505"

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore keeps folders in the review_folders table.
type PGStore struct {
	pool *pgxpool.Pool
	now  clock
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, now: time.Now}
}

func (s *PGStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

func (s *PGStore) List(ctx context.Context, filter string) ([]Summary, error) {
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT name, generated_at, note_file, icd_count, cpt_count
		 FROM review_folders
		 WHERE $1 = '' OR name ILIKE '%' || $1 || '%'
		 ORDER BY generated_at DESC, name`, strings.TrimSpace(filter))
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Name, &sum.GeneratedAt, &sum.NoteFile, &sum.CodeCounts.ICD, &sum.CodeCounts.CPT); err != nil {
			return nil, err
		}
		sum.CodeCounts.Total = sum.CodeCounts.ICD + sum.CodeCounts.CPT
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *PGStore) Load(ctx context.Context, name string) (*Folder, error) {
	var (
		f   Folder
		raw []byte
	)
	err := s.conn(ctx).QueryRow(ctx,
		`SELECT name, note_text, note_file, codes, generated_at FROM review_folders WHERE name = $1`, name).
		Scan(&f.Name, &f.NoteText, &f.NoteFile, &raw, &f.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrFolderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load folder %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, &f.Codes); err != nil {
		return nil, fmt.Errorf("decode codes of %s: %w", name, err)
	}
	if f.Codes == nil {
		f.Codes = []PersistedCode{}
	}
	return &f, nil
}

func (s *PGStore) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	stem, noteFile := names(req, now)
	codes, err := json.Marshal(req.Codes)
	if err != nil {
		return nil, fmt.Errorf("encode codes: %w", err)
	}
	counts := CountPersisted(req.Codes)

	var (
		name    string
		renamed bool
	)
	err = db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		conn := s.conn(ctx)
		if !req.UpdateExisting {
			claimed, err := s.insertNew(ctx, conn, stem, req.NoteText, noteFile, codes, counts, now)
			name = claimed
			return err
		}

		old := strings.TrimSpace(req.OldName)
		if old == "" {
			old = stem
		}
		tag, err := conn.Exec(ctx,
			`UPDATE review_folders
			 SET name = $2, note_text = $3, note_file = $4, codes = $5,
			     icd_count = $6, cpt_count = $7, generated_at = $8
			 WHERE name = $1`,
			old, stem, req.NoteText, noteFile, codes, counts.ICD, counts.CPT, now)
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", stem, ErrFolderExists)
		}
		if err != nil {
			return fmt.Errorf("update folder %s: %w", old, err)
		}
		if tag.RowsAffected() == 0 {
			if old != stem {
				return fmt.Errorf("%s: %w", old, ErrFolderNotFound)
			}
			if _, err := conn.Exec(ctx, insertFolderSQL, stem, req.NoteText, noteFile, codes, counts.ICD, counts.CPT, now); err != nil {
				return fmt.Errorf("insert folder %s: %w", stem, err)
			}
		}
		name, renamed = stem, old != stem
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SaveResult{
		Name:       name,
		OutputPath: "review_folders/" + name,
		NoteFile:   noteFile,
		Counts:     counts,
		Renamed:    renamed,
	}, nil
}

const insertFolderSQL = `INSERT INTO review_folders
	(name, note_text, note_file, codes, icd_count, cpt_count, generated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (name) DO NOTHING`

// insertNew claims the first free stem, stem-01, stem-02, ... name.
func (s *PGStore) insertNew(ctx context.Context, conn queryable, stem, note, noteFile string, codes []byte, counts curation.Counts, now time.Time) (string, error) {
	for n := 0; n < maxCandidates; n++ {
		name := candidate(stem, n)
		tag, err := conn.Exec(ctx, insertFolderSQL, name, note, noteFile, codes, counts.ICD, counts.CPT, now)
		if err != nil {
			return "", fmt.Errorf("insert folder %s: %w", name, err)
		}
		if tag.RowsAffected() == 1 {
			return name, nil
		}
	}
	return "", fmt.Errorf("%s: %w", stem, ErrFolderExists)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PGStore) Delete(ctx context.Context, name string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM review_folders WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete folder %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", name, ErrFolderNotFound)
	}
	return nil
}

func (s *PGStore) DeleteAll(ctx context.Context) (int, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM review_folders`)
	if err != nil {
		return 0, fmt.Errorf("delete folders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

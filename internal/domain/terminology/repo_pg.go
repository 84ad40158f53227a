package terminology

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/codeassist/internal/platform/db"
)

// ErrCodeNotFound is returned when a code is absent from a dictionary.
var ErrCodeNotFound = errors.New("code not found")

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository over the reference_icd9, reference_icd10
// and reference_cpt tables.
func NewRepoPG(pool *pgxpool.Pool) *repoPG { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Search matches the code (with or without dots) or description. Codes that
// start with the query rank first.
func (r *repoPG) Search(ctx context.Context, system System, query string, limit int) ([]*Code, error) {
	if limit <= 0 {
		limit = 20
	}
	q := strings.TrimSpace(query)
	pattern := "%" + q + "%"
	prefix := q + "%"
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT code, display, COALESCE(category,'')
		 FROM %s
		 WHERE code ILIKE $1 OR replace(code, '.', '') ILIKE $3 OR display ILIKE $1
		 ORDER BY (code ILIKE $2) DESC, code
		 LIMIT $4`, pgx.Identifier{system.Table()}.Sanitize()),
		pattern, prefix, "%"+compact(q)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", system, err)
	}
	defer rows.Close()
	var results []*Code
	for rows.Next() {
		c := Code{System: system}
		if err := rows.Scan(&c.Code, &c.Description, &c.Category); err != nil {
			return nil, err
		}
		results = append(results, &c)
	}
	return results, rows.Err()
}

func (r *repoPG) GetByCode(ctx context.Context, system System, code string) (*Code, error) {
	c := Code{System: system}
	err := r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT code, display, COALESCE(category,'')
		 FROM %s WHERE code = $1 OR replace(code, '.', '') = $2
		 ORDER BY (code = $1) DESC LIMIT 1`, pgx.Identifier{system.Table()}.Sanitize()),
		strings.TrimSpace(code), compact(code)).
		Scan(&c.Code, &c.Description, &c.Category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", system, code, ErrCodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s get: %w", system, err)
	}
	return &c, nil
}

// Import replaces the contents of a reference table in one transaction.
func (r *repoPG) Import(ctx context.Context, system System, codes []*Code) (int64, error) {
	var n int64
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		conn := r.conn(ctx)
		if _, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s", pgx.Identifier{system.Table()}.Sanitize())); err != nil {
			return fmt.Errorf("clear %s: %w", system.Table(), err)
		}
		var err error
		n, err = conn.CopyFrom(ctx, pgx.Identifier{system.Table()}, []string{"code", "display", "category"},
			pgx.CopyFromSlice(len(codes), func(i int) ([]any, error) {
				return []any{codes[i].Code, codes[i].Description, codes[i].Category}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", system.Table(), err)
		}
		return nil
	})
	return n, err
}

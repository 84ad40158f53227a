package terminology

import "context"

// Repository provides access to reference codes of every supported system.
type Repository interface {
	Search(ctx context.Context, system System, query string, limit int) ([]*Code, error)
	GetByCode(ctx context.Context, system System, code string) (*Code, error)
}

// Importer bulk-loads reference codes.
type Importer interface {
	Import(ctx context.Context, system System, codes []*Code) (int64, error)
}

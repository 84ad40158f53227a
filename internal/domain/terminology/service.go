package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ehr/codeassist/internal/platform/cache"
)

const (
	defaultLimit    = 20
	maxLimit        = 100
	defaultCacheTTL = 10 * time.Minute
)

// Service provides code dictionary search and lookup. Identical concurrent
// searches share one repository call, and results are cached when a cache
// is configured.
type Service struct {
	repo   Repository
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger zerolog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache enables result caching.
func WithCache(c cache.Cache, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a new terminology service.
func NewService(repo Repository, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, ttl: defaultCacheTTL, logger: zerolog.Nop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Search finds codes in one dictionary by code or description text.
func (s *Service) Search(ctx context.Context, system System, query string, limit int) ([]*Code, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	if system.URI() == "" {
		return nil, fmt.Errorf("unknown code system %q", system)
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	key := cacheKey(system, query, limit)
	if codes, ok := s.cached(ctx, key); ok {
		return codes, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		codes, err := s.repo.Search(ctx, system, query, limit)
		if err != nil {
			return nil, err
		}
		if codes == nil {
			codes = []*Code{}
		}
		s.store(ctx, key, codes)
		return codes, nil
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", system, err)
	}
	return copyCodes(v.([]*Code)), nil
}

// Lookup returns a single code.
func (s *Service) Lookup(ctx context.Context, system System, code string) (*Code, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}
	return s.repo.GetByCode(ctx, system, code)
}

// Describe returns the dictionary description of a code, or "" when the
// code is unknown.
func (s *Service) Describe(ctx context.Context, system System, code string) string {
	c, err := s.Lookup(ctx, system, code)
	if err != nil {
		return ""
	}
	return c.Description
}

func (s *Service) cached(ctx context.Context, key string) ([]*Code, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, found, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("terminology cache read failed")
		return nil, false
	}
	if !found {
		return nil, false
	}
	var codes []*Code
	if err := json.Unmarshal(data, &codes); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding corrupt cache entry")
		return nil, false
	}
	return codes, true
}

func (s *Service) store(ctx context.Context, key string, codes []*Code) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("terminology cache write failed")
	}
}

func cacheKey(system System, query string, limit int) string {
	return "terminology:" + string(system) + ":" + strconv.Itoa(limit) + ":" + strings.ToLower(query)
}

func copyCodes(in []*Code) []*Code {
	out := make([]*Code, len(in))
	for i, c := range in {
		cp := *c
		out[i] = &cp
	}
	return out
}

package workflow

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionForbidden = errors.New("session belongs to another user")
)

// Session is one user's workspace.
type Session struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner"`
	CreatedAt  time.Time   `json:"created_at"`
	Controller *Controller `json:"-"`
}

// Factory builds the controller for a new session.
type Factory func() *Controller

// Registry keeps sessions in memory. A session expires after ttl without
// access; every successful Get extends it.
type Registry struct {
	cache   *cache.Cache
	factory Factory
	now     func() time.Time
}

func NewRegistry(ttl time.Duration, factory Factory) *Registry {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	cleanup := ttl / 4
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Registry{cache: cache.New(ttl, cleanup), factory: factory, now: time.Now}
}

// Create starts a session in Predict mode for owner.
func (r *Registry) Create(owner string) *Session {
	s := &Session{
		ID:         uuid.New().String(),
		Owner:      owner,
		CreatedAt:  r.now().UTC(),
		Controller: r.factory(),
	}
	r.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s
}

// Get returns the session when owner may use it. An empty owner matches
// any session.
func (r *Registry) Get(id, owner string) (*Session, error) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, ErrSessionNotFound
	}
	s := x.(*Session)
	if owner != "" && s.Owner != "" && s.Owner != owner {
		return nil, ErrSessionForbidden
	}
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, nil
}

// Delete ends a session.
func (r *Registry) Delete(id, owner string) error {
	if _, err := r.Get(id, owner); err != nil {
		return err
	}
	r.cache.Delete(id)
	return nil
}

// Len counts live sessions, including expired ones not yet purged.
func (r *Registry) Len() int { return r.cache.ItemCount() }

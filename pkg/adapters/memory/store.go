package memory

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Safe for concurrent use: a single map-wide mutex guards every read-modify-write.
// Expired records are only evicted when their token is looked up again.
type Store struct {
	data    map[string]domain.Record
	mu      sync.Mutex
	timeout time.Duration
	now     func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithTimeout sets the inactivity window (default: domain.DefaultTimeout).
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// WithClock replaces the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		data:    make(map[string]domain.Record),
		timeout: domain.DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores the handle under token, stamped with the current time.
func (s *Store) Put(ctx context.Context, token string, handle domain.Handle) error {
	if token == "" {
		return domain.ErrMalformedToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[token] = domain.NewRecord(handle, s.now())
	return nil
}

// Get looks the token up, evicting it when expired and refreshing it when live.
func (s *Store) Get(ctx context.Context, token string) (domain.Outcome, domain.Record, error) {
	if token == "" {
		return domain.NotFound, domain.Record{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[token]
	if !ok {
		return domain.NotFound, domain.Record{}, nil
	}

	now := s.now()
	if !rec.Live(now, s.timeout) {
		delete(s.data, token)
		return domain.Expired, domain.Record{}, nil
	}

	rec = rec.Touch(now)
	s.data[token] = rec
	return domain.Found, rec, nil
}

// Import stores a record received from a peer without re-stamping it.
func (s *Store) Import(ctx context.Context, token string, record domain.Record) error {
	if token == "" {
		return domain.ErrMalformedToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[token] = record
	return nil
}

// Len returns the number of records held, including stale ones not yet evicted.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data), nil
}

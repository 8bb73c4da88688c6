package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
	"github.com/aretw0/portalgate/pkg/wire"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.SessionStore using Redis, so several instances can share
// one token space. Liveness is judged from the stored last interaction time, the
// key TTL only bounds how long forgotten records linger.
type Store struct {
	client  *backend.Client
	codec   ports.HandleCodec
	locker  ports.DistributedLocker
	prefix  string
	timeout time.Duration
	lockTTL time.Duration
	now     func() time.Time
}

type Option func(*Store)

// WithTimeout sets the inactivity window.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithLocker overrides the locker guarding Get.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Store) {
		s.locker = locker
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, codec ports.HandleCodec, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, codec, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, codec ports.HandleCodec, opts ...Option) *Store {
	store := &Store{
		client:  client,
		codec:   codec,
		prefix:  "portalgate:session:",
		timeout: domain.DefaultTimeout,
		lockTTL: 5 * time.Second,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	if store.locker == nil {
		store.locker = NewLocker(client, store.prefix)
	}

	return store
}

// Records, the index and the locks live in separate sub-namespaces so that no
// token, however crafted, can name a key of another kind.
func (s *Store) key(token string) string {
	return s.prefix + "rec:" + token
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// ttl keeps a record around for one extra window so that a late Get still
// reports Expired rather than NotFound.
func (s *Store) ttl(rec domain.Record) time.Duration {
	ttl := 2*s.timeout - s.now().Sub(rec.LastInteraction)
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) write(ctx context.Context, token string, rec domain.Record) error {
	data, err := wire.Encode(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(token), data, s.ttl(rec))
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(rec.LastInteraction.Unix()),
		Member: token,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

func (s *Store) evict(ctx context.Context, token string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(token))
	pipe.ZRem(ctx, s.indexKey(), token)
	_, err := pipe.Exec(ctx)
	return err
}

// Put stores the handle under token, stamped with the current time.
func (s *Store) Put(ctx context.Context, token string, handle domain.Handle) error {
	if token == "" {
		return domain.ErrMalformedToken
	}
	return s.write(ctx, token, domain.NewRecord(handle, s.now()))
}

// Import stores a record received from a peer without re-stamping it.
func (s *Store) Import(ctx context.Context, token string, record domain.Record) error {
	if token == "" {
		return domain.ErrMalformedToken
	}
	return s.write(ctx, token, record)
}

// Get looks the token up under a distributed lock, evicting or refreshing it.
func (s *Store) Get(ctx context.Context, token string) (outcome domain.Outcome, rec domain.Record, err error) {
	if token == "" {
		return domain.NotFound, domain.Record{}, nil
	}

	unlock, err := s.locker.Lock(ctx, token, s.lockTTL)
	if err != nil {
		return domain.NotFound, domain.Record{}, err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && err == nil {
			err = fmt.Errorf("failed to release lock: %w", uerr)
		}
	}()

	val, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return domain.NotFound, domain.Record{}, nil
		}
		return domain.NotFound, domain.Record{}, fmt.Errorf("failed to get from redis: %w", err)
	}

	stored, err := wire.Decode(val, s.codec)
	if err != nil {
		return domain.NotFound, domain.Record{}, err
	}

	now := s.now()
	if !stored.Live(now, s.timeout) {
		if err := s.evict(ctx, token); err != nil {
			return domain.NotFound, domain.Record{}, fmt.Errorf("failed to evict: %w", err)
		}
		return domain.Expired, domain.Record{}, nil
	}

	stored = stored.Touch(now)
	if err := s.write(ctx, token, stored); err != nil {
		return domain.NotFound, domain.Record{}, err
	}
	return domain.Found, stored, nil
}

// Len returns the number of indexed records. Index entries whose key TTL has
// lapsed are dropped first.
func (s *Store) Len(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-2 * s.timeout).Unix()
	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff))
	card := pipe.ZCard(ctx, s.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	n, err := card.Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return int(n), nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

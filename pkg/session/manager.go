package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/portalgate/internal/logging"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager resolves tokens against the local store and, on a miss, the peers.
// It uses Reference Counting to garbage collect unused per-token locks.
type Manager struct {
	store ports.SessionStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	peers       []domain.Peer
	client      ports.PeerClient
	peerTimeout time.Duration

	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// WithPeers enables the remote fallback. Peers are queried in the given order.
func WithPeers(client ports.PeerClient, peers ...domain.Peer) Option {
	return func(m *Manager) {
		m.client = client
		m.peers = append([]domain.Peer(nil), peers...)
	}
}

// WithPeerTimeout bounds each peer query (default: domain.DefaultPeerTimeout).
func WithPeerTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.peerTimeout = timeout
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Session Manager on top of the given store.
func NewManager(store ports.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		locks:       make(map[string]*lockEntry),
		peerTimeout: domain.DefaultPeerTimeout,
		logger:      logging.NewNop(), // Default to no-op
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(token) after unlocking.
func (m *Manager) acquire(token string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[token]
	if !exists {
		entry = &lockEntry{}
		m.locks[token] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[token]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, token)
	}
}

// NewToken returns an unguessable URL-safe token with domain.TokenBytes of entropy.
func NewToken() (string, error) {
	b := make([]byte, domain.TokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateToken mints a token for a freshly logged-in handle and stores it.
func (m *Manager) GenerateToken(ctx context.Context, handle domain.Handle) (string, error) {
	token, err := NewToken()
	if err != nil {
		return "", err
	}
	if err := m.store.Put(ctx, token, handle); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	if m.hooks.OnTokenIssued != nil {
		m.hooks.OnTokenIssued(ctx, &domain.EventBase{Timestamp: m.now(), Type: domain.EventTokenIssued})
	}
	m.logger.Debug("Token issued")
	return token, nil
}

// Resolve turns an end-user token into its handle, falling back to peers on a local miss.
func (m *Manager) Resolve(ctx context.Context, token string) (domain.Outcome, domain.Handle, error) {
	outcome, rec, err := m.Lookup(ctx, token, domain.OriginClient)
	return outcome, rec.Handle, err
}

// Lookup resolves a token and returns the whole record.
//
// A local Found or Expired is final. A local NotFound is final for OriginPeer;
// for OriginClient every peer is asked in order and the first record found is imported.
// The error return only reports store faults; unreachable peers are treated as misses.
func (m *Manager) Lookup(ctx context.Context, token string, origin domain.Origin) (domain.Outcome, domain.Record, error) {
	if token == "" {
		m.emitResolve(ctx, domain.NotFound, origin, domain.SourceNone)
		return domain.NotFound, domain.Record{}, nil
	}

	// Peer queries never wait on our per-token lock: two instances resolving the
	// same token for their users would otherwise block on each other.
	if origin == domain.OriginPeer || len(m.peers) == 0 || m.client == nil {
		return m.lookupLocal(ctx, token, origin)
	}

	entry := m.acquire(token)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(token)
	}()

	outcome, rec, err := m.store.Get(ctx, token)
	if err != nil {
		return domain.NotFound, domain.Record{}, fmt.Errorf("failed to read session store: %w", err)
	}
	if outcome != domain.NotFound {
		m.emitResolve(ctx, outcome, origin, domain.SourceLocal)
		return outcome, rec, nil
	}

	rec, found := m.askPeers(ctx, token)
	if !found {
		m.emitResolve(ctx, domain.NotFound, origin, domain.SourceNone)
		return domain.NotFound, domain.Record{}, nil
	}

	if err := m.store.Import(ctx, token, rec); err != nil {
		return domain.NotFound, domain.Record{}, fmt.Errorf("failed to import session: %w", err)
	}
	m.emitResolve(ctx, domain.Found, origin, domain.SourcePeer)
	return domain.Found, rec, nil
}

func (m *Manager) lookupLocal(ctx context.Context, token string, origin domain.Origin) (domain.Outcome, domain.Record, error) {
	outcome, rec, err := m.store.Get(ctx, token)
	if err != nil {
		return domain.NotFound, domain.Record{}, fmt.Errorf("failed to read session store: %w", err)
	}

	source := domain.SourceLocal
	if outcome == domain.NotFound {
		source = domain.SourceNone
	}
	m.emitResolve(ctx, outcome, origin, source)
	return outcome, rec, nil
}

// askPeers queries each peer once, in order, stopping at the first hit.
func (m *Manager) askPeers(ctx context.Context, token string) (domain.Record, bool) {
	for _, peer := range m.peers {
		if ctx.Err() != nil {
			return domain.Record{}, false
		}

		start := m.now()
		qctx, cancel := context.WithTimeout(ctx, m.peerTimeout)
		rec, err := m.client.Lookup(qctx, peer, token)
		cancel()

		found := err == nil && rec != nil
		if m.hooks.OnPeerQuery != nil {
			m.hooks.OnPeerQuery(ctx, &domain.PeerQueryEvent{
				EventBase: domain.EventBase{Timestamp: m.now(), Type: domain.EventPeerQuery},
				Peer:      peer,
				Found:     found,
				Err:       err,
				Duration:  m.now().Sub(start),
			})
		}

		if err != nil {
			m.logger.Warn("Peer lookup failed, skipping",
				"peer", peer.String(),
				"err", err,
			)
			continue
		}
		if found {
			m.logger.Info("Session imported from peer", "peer", peer.String())
			return *rec, true
		}
	}
	return domain.Record{}, false
}

func (m *Manager) emitResolve(ctx context.Context, outcome domain.Outcome, origin domain.Origin, source domain.Source) {
	m.logger.Debug("Token resolved",
		"outcome", outcome.String(),
		"origin", origin.String(),
		"source", string(source),
	)
	if m.hooks.OnResolve != nil {
		m.hooks.OnResolve(ctx, &domain.ResolveEvent{
			EventBase: domain.EventBase{Timestamp: m.now(), Type: domain.EventResolved},
			Outcome:   outcome,
			Origin:    origin,
			Source:    source,
		})
	}
}

// Store returns the underlying session store.
func (m *Manager) Store() ports.SessionStore {
	return m.store
}

// Peers returns the peers consulted on a local miss.
func (m *Manager) Peers() []domain.Peer {
	return append([]domain.Peer(nil), m.peers...)
}

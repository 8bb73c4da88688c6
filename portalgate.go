package portalgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/portalgate/internal/config"
	"github.com/aretw0/portalgate/internal/logging"
	httpAdapter "github.com/aretw0/portalgate/pkg/adapters/http"
	"github.com/aretw0/portalgate/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/portalgate/pkg/adapters/redis"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/observability"
	"github.com/aretw0/portalgate/pkg/peer"
	"github.com/aretw0/portalgate/pkg/portal"
	"github.com/aretw0/portalgate/pkg/ports"
	"github.com/aretw0/portalgate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gateway is one running instance: its session cache, its view of the
// sibling instances and the HTTP API in front of them.
type Gateway struct {
	cfg       *config.Config
	manager   *session.Manager
	directory *peer.Directory
	metrics   *observability.Metrics
	handler   http.Handler
	logger    *slog.Logger
	transport http.RoundTripper
	registry  *prometheus.Registry
	store     ports.SessionStore
	closers   []func() error
}

// Option defines a functional option for configuring the Gateway.
type Option func(*Gateway)

// WithLogger sets a custom structured logger for the gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTransport sets the round tripper used to reach the portal and the peers.
func WithTransport(rt http.RoundTripper) Option {
	return func(g *Gateway) {
		g.transport = rt
	}
}

// WithStore replaces the store selected by the configuration.
func WithStore(store ports.SessionStore) Option {
	return func(g *Gateway) {
		g.store = store
	}
}

// New builds a Gateway from cfg.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}
	g.logger = g.logger.With("instance", cfg.InstanceID)

	codec := portal.Codec{Transport: g.transport}

	if g.store == nil {
		store, closer, err := openStore(cfg, codec)
		if err != nil {
			return nil, err
		}
		g.store = store
		if closer != nil {
			g.closers = append(g.closers, closer)
		}
	}

	dir, err := peer.NewDirectory(cfg.InstanceID, cfg.Peers)
	if err != nil {
		return nil, fmt.Errorf("invalid peer directory: %w", err)
	}
	g.directory = dir

	g.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	g.metrics = observability.NewMetrics(g.registry)

	client := peer.NewClient(cfg.InstanceID, codec,
		peer.WithHTTPClient(&http.Client{Transport: g.transport}),
		peer.WithTimeout(cfg.PeerTimeout),
	)

	g.manager = session.NewManager(g.store,
		session.WithPeers(client, dir.Peers()...),
		session.WithPeerTimeout(cfg.PeerTimeout),
		session.WithLifecycleHooks(observability.Combine(g.metrics.Hooks(), logHooks(g.logger))),
		session.WithLogger(g.logger),
	)

	handler, err := httpAdapter.NewHandler(httpAdapter.Options{
		Sessions: g.manager,
		Authenticator: &portal.Authenticator{
			Transport: g.transport,
			ENTs:      cfg.ENTs,
			Logger:    g.logger,
		},
		Metrics:    promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}),
		Logger:     g.logger,
		InstanceID: cfg.InstanceID,
		Version:    Version,
	})
	if err != nil {
		return nil, err
	}
	g.handler = handler

	return g, nil
}

func openStore(cfg *config.Config, codec ports.HandleCodec) (ports.SessionStore, func() error, error) {
	switch cfg.Store.Kind {
	case "redis":
		enc, err := cfg.Store.Encryption()
		if err != nil {
			return nil, nil, err
		}
		if enc != nil {
			codec = enc.Codec(codec)
		}

		rc := cfg.Store.Redis
		s := redisAdapter.New(rc.Addr, rc.Password, rc.DB, codec,
			redisAdapter.WithTimeout(cfg.Timeout),
			redisAdapter.WithPrefix(rc.Prefix),
		)
		if enc != nil {
			return enc.Middleware()(s), s.Close, nil
		}
		return s, s.Close, nil
	case "memory", "":
		return memory.NewStore(memory.WithTimeout(cfg.Timeout)), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

func logHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTokenIssued: func(ctx context.Context, _ *domain.EventBase) {
			logger.DebugContext(ctx, "Token issued")
		},
		OnResolve: func(ctx context.Context, e *domain.ResolveEvent) {
			logger.DebugContext(ctx, "Token resolved",
				"outcome", e.Outcome.String(), "origin", e.Origin.String(), "source", e.Source)
		},
		OnPeerQuery: func(ctx context.Context, e *domain.PeerQueryEvent) {
			if e.Err != nil {
				return
			}
			logger.DebugContext(ctx, "Peer queried", "peer", e.Peer.ID, "found", e.Found, "duration", e.Duration)
		},
	}
}

// Handler returns the HTTP API of the instance.
func (g *Gateway) Handler() http.Handler { return g.handler }

// Manager returns the session manager.
func (g *Gateway) Manager() *session.Manager { return g.manager }

// Directory returns the sibling instances this gateway queries.
func (g *Gateway) Directory() *peer.Directory { return g.directory }

// Config returns the configuration the gateway was built from.
func (g *Gateway) Config() *config.Config { return g.cfg }

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              g.cfg.Listen,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		g.logger.Info("Starting server", "addr", srv.Addr, "peers", g.directory.Len(), "store", g.cfg.Store.Kind)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		g.logger.Warn("Graceful shutdown did not complete", "error", err)
		return srv.Close()
	}
	g.logger.Info("Server stopped gracefully")
	return nil
}

// Close releases the store connections.
func (g *Gateway) Close() error {
	var errs []error
	for _, c := range g.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

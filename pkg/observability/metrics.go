package observability

import (
	"context"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of one instance.
type Metrics struct {
	TokensIssued prometheus.Counter
	Resolutions  *prometheus.CounterVec
	PeerQueries  *prometheus.CounterVec
	PeerDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg (skipped when reg is nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portalgate_tokens_issued_total",
			Help: "Total number of tokens minted after a successful login",
		}),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_resolutions_total",
				Help: "Token resolutions by outcome, origin and answering source",
			},
			[]string{"outcome", "origin", "source"},
		),
		PeerQueries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portalgate_peer_queries_total",
				Help: "Queries sent to sibling instances by result",
			},
			[]string{"peer", "result"},
		),
		PeerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portalgate_peer_query_duration_seconds",
			Help:    "Duration of queries sent to sibling instances",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TokensIssued, m.Resolutions, m.PeerQueries, m.PeerDuration)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTokenIssued: func(context.Context, *domain.EventBase) {
			m.TokensIssued.Inc()
		},
		OnResolve: func(_ context.Context, e *domain.ResolveEvent) {
			m.Resolutions.WithLabelValues(e.Outcome.String(), e.Origin.String(), string(e.Source)).Inc()
		},
		OnPeerQuery: func(_ context.Context, e *domain.PeerQueryEvent) {
			result := "miss"
			switch {
			case e.Err != nil:
				result = "error"
			case e.Found:
				result = "found"
			}
			m.PeerQueries.WithLabelValues(e.Peer.ID, result).Inc()
			m.PeerDuration.Observe(e.Duration.Seconds())
		},
	}
}

// Combine chains several hook sets; each callback runs in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTokenIssued: func(ctx context.Context, e *domain.EventBase) {
			for _, s := range sets {
				if s.OnTokenIssued != nil {
					s.OnTokenIssued(ctx, e)
				}
			}
		},
		OnResolve: func(ctx context.Context, e *domain.ResolveEvent) {
			for _, s := range sets {
				if s.OnResolve != nil {
					s.OnResolve(ctx, e)
				}
			}
		},
		OnPeerQuery: func(ctx context.Context, e *domain.PeerQueryEvent) {
			for _, s := range sets {
				if s.OnPeerQuery != nil {
					s.OnPeerQuery(ctx, e)
				}
			}
		},
	}
}

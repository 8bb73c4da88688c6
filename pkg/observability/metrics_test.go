package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnTokenIssued(ctx, &domain.EventBase{})
	hooks.OnResolve(ctx, &domain.ResolveEvent{Outcome: domain.Expired, Origin: domain.OriginClient, Source: domain.SourceLocal})
	hooks.OnResolve(ctx, &domain.ResolveEvent{Outcome: domain.NotFound, Origin: domain.OriginClient, Source: domain.SourceNone})
	hooks.OnPeerQuery(ctx, &domain.PeerQueryEvent{Peer: domain.Peer{ID: "b"}, Err: errors.New("timeout"), Duration: time.Second})
	hooks.OnPeerQuery(ctx, &domain.PeerQueryEvent{Peer: domain.Peer{ID: "c"}, Found: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("expired", "client", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues("notfound", "client", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeerQueries.WithLabelValues("b", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeerQueries.WithLabelValues("c", "found")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.PeerQueries))
}

func TestCombine(t *testing.T) {
	var calls []string
	a := domain.LifecycleHooks{OnResolve: func(context.Context, *domain.ResolveEvent) { calls = append(calls, "a") }}
	b := domain.LifecycleHooks{OnResolve: func(context.Context, *domain.ResolveEvent) { calls = append(calls, "b") }}

	hooks := observability.Combine(a, b, domain.LifecycleHooks{})
	hooks.OnResolve(context.Background(), &domain.ResolveEvent{})
	hooks.OnPeerQuery(context.Background(), &domain.PeerQueryEvent{})

	assert.Equal(t, []string{"a", "b"}, calls)
}

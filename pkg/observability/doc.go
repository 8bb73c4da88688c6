/*
Package observability exposes Prometheus metrics for the session cache.

Metrics are fed through domain.LifecycleHooks so the resolver stays free of any
metrics dependency:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	mgr := session.NewManager(store, session.WithLifecycleHooks(metrics.Hooks()))

Expired and not-found resolutions are counted separately, which separates "never
logged in" from "session timed out".
*/
package observability

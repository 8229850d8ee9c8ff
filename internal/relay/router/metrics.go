package router

import (
	"context"
	"time"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

// MetricsRouter wraps a relay.Router with metrics collection
type MetricsRouter struct {
	router   relay.Router
	registry *metrics.Registry
}

// NewMetricsRouter creates a new instrumented router
func NewMetricsRouter(router relay.Router, registry *metrics.Registry) relay.Router {
	return &MetricsRouter{
		router:   router,
		registry: registry,
	}
}

// Route implements relay.Router.Route with metrics collection
func (r *MetricsRouter) Route(ctx context.Context, n relay.Notification) ([]relay.OutboundPayload, error) {
	start := time.Now()

	payloads, err := r.router.Route(ctx, n)
	duration := time.Since(start)

	r.registry.RecordRoute(string(n.Kind()), len(payloads), duration, err)

	return payloads, err
}

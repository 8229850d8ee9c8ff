package router

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relay/internal/relay"
	"relay/internal/relay/tracing"
)

// TracedRouter wraps a relay.Router with distributed tracing
// Layer order: TracedRouter -> MetricsRouter -> Router (real thing)
type TracedRouter struct {
	router relay.Router
	tracer *tracing.Tracer
}

// NewTracedRouter creates a new traced router that wraps a metrics router
func NewTracedRouter(router relay.Router, tracer *tracing.Tracer) relay.Router {
	return &TracedRouter{
		router: router,
		tracer: tracer,
	}
}

// Route implements relay.Router.Route with distributed tracing
func (r *TracedRouter) Route(ctx context.Context, n relay.Notification) ([]relay.OutboundPayload, error) {
	ctx, span := r.tracer.StartSpan(ctx, "router.route")
	defer span.End()

	span.SetAttributes(attribute.String("relay.kind", string(n.Kind())))

	payloads, err := r.router.Route(ctx, n)

	span.SetAttributes(attribute.Int("relay.fanout_size", len(payloads)))

	if err != nil {
		r.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(r.tracer.ErrorAttributes(err)...)

	return payloads, err
}

package publisher

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relay/internal/relay"
	"relay/internal/relay/tracing"
)

// TracedPublisher wraps a relay.Publisher with distributed tracing
// Layer order: TracedPublisher -> MetricsPublisher -> Publisher (real thing)
type TracedPublisher struct {
	publisher relay.Publisher
	tracer    *tracing.Tracer
}

// NewTracedPublisher creates a new traced publisher that wraps a metrics publisher
func NewTracedPublisher(publisher relay.Publisher, tracer *tracing.Tracer) relay.Publisher {
	return &TracedPublisher{
		publisher: publisher,
		tracer:    tracer,
	}
}

// Publish implements relay.Publisher.Publish with distributed tracing
func (p *TracedPublisher) Publish(ctx context.Context, n relay.Notification) (*relay.Receipt, error) {
	ctx, span := p.tracer.StartSpan(ctx, "publisher.publish")
	defer span.End()

	span.SetAttributes(attribute.String("relay.kind", string(n.Kind())))

	receipt, err := p.publisher.Publish(ctx, n)

	if receipt != nil {
		span.SetAttributes(
			attribute.String("relay.record_id", receipt.RecordID),
			attribute.Int64("relay.offset", int64(receipt.Offset)),
		)
	}

	if err != nil {
		p.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(p.tracer.ErrorAttributes(err)...)

	return receipt, err
}

package consumer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relay/internal/relay"
	"relay/internal/relay/tracing"
)

// TracedConsumer wraps a relay.Consumer with distributed tracing
// Layer order: TracedConsumer -> MetricsConsumer -> Consumer (real thing)
type TracedConsumer struct {
	consumer relay.Consumer
	tracer   *tracing.Tracer
	sub      string
}

// NewTracedConsumer creates a new traced consumer that wraps a metrics consumer
func NewTracedConsumer(consumer relay.Consumer, tracer *tracing.Tracer, sub string) relay.Consumer {
	return &TracedConsumer{
		consumer: consumer,
		tracer:   tracer,
		sub:      sub,
	}
}

// Pull implements relay.Consumer.Pull with distributed tracing
func (c *TracedConsumer) Pull(ctx context.Context) (int, error) {
	ctx, span := c.tracer.StartSpan(ctx, "consumer.pull")
	defer span.End()

	span.SetAttributes(attribute.String("relay.subscription", c.sub))

	processed, err := c.consumer.Pull(ctx)

	span.SetAttributes(attribute.Int("relay.records_processed", processed))

	if err != nil {
		c.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(c.tracer.ErrorAttributes(err)...)

	return processed, err
}

package consumer

import (
	"context"
	"time"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

// MetricsConsumer wraps a relay.Consumer with metrics collection
type MetricsConsumer struct {
	consumer relay.Consumer
	registry *metrics.Registry
	sub      string
}

// NewMetricsConsumer creates a new instrumented consumer
func NewMetricsConsumer(consumer relay.Consumer, registry *metrics.Registry, sub string) relay.Consumer {
	return &MetricsConsumer{
		consumer: consumer,
		registry: registry,
		sub:      sub,
	}
}

// Pull implements relay.Consumer.Pull with metrics collection
func (c *MetricsConsumer) Pull(ctx context.Context) (int, error) {
	start := time.Now()

	processed, err := c.consumer.Pull(ctx)
	duration := time.Since(start)

	c.registry.RecordConsumerPull(c.sub, processed, duration, err)

	return processed, err
}

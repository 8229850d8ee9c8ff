package publisher

import (
	"context"
	"time"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

// MetricsPublisher wraps a relay.Publisher with metrics collection
type MetricsPublisher struct {
	publisher relay.Publisher
	registry  *metrics.Registry
}

// NewMetricsPublisher creates a new instrumented publisher
func NewMetricsPublisher(publisher relay.Publisher, registry *metrics.Registry) relay.Publisher {
	return &MetricsPublisher{
		publisher: publisher,
		registry:  registry,
	}
}

// Publish implements relay.Publisher.Publish with metrics collection
func (p *MetricsPublisher) Publish(ctx context.Context, n relay.Notification) (*relay.Receipt, error) {
	start := time.Now()

	receipt, err := p.publisher.Publish(ctx, n)
	duration := time.Since(start)

	p.registry.RecordPublish(string(n.Kind()), duration, err)

	return receipt, err
}

package channel

import (
	"context"
	"time"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

// MetricsChannel wraps a relay.Channel with metrics collection
type MetricsChannel struct {
	channel  relay.Channel
	registry *metrics.Registry
}

// NewMetricsChannel creates a new instrumented channel
func NewMetricsChannel(channel relay.Channel, registry *metrics.Registry) relay.Channel {
	return &MetricsChannel{
		channel:  channel,
		registry: registry,
	}
}

// Append implements relay.Channel.Append with metrics collection
func (c *MetricsChannel) Append(ctx context.Context, rec relay.Record) error {
	start := time.Now()

	err := c.channel.Append(ctx, rec)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("append_record", duration, err)

	return err
}

// Load implements relay.Channel.Load with metrics collection
func (c *MetricsChannel) Load(ctx context.Context, fromOffset uint64, limit int) ([]relay.Record, error) {
	start := time.Now()

	records, err := c.channel.Load(ctx, fromOffset, limit)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("load_records", duration, err)

	return records, err
}

// NextOffset implements relay.Channel.NextOffset with metrics collection
func (c *MetricsChannel) NextOffset(ctx context.Context) (uint64, error) {
	start := time.Now()

	offset, err := c.channel.NextOffset(ctx)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("next_offset", duration, err)

	return offset, err
}

// CommitOffset implements relay.Channel.CommitOffset with metrics collection
func (c *MetricsChannel) CommitOffset(offset uint64) error {
	start := time.Now()

	err := c.channel.CommitOffset(offset)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("commit_offset", duration, err)

	return err
}

// GetCursor implements relay.Channel.GetCursor with metrics collection
func (c *MetricsChannel) GetCursor(ctx context.Context, sub string) (uint64, error) {
	start := time.Now()

	offset, err := c.channel.GetCursor(ctx, sub)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("get_cursor", duration, err)

	return offset, err
}

// CommitCursor implements relay.Channel.CommitCursor with metrics collection
func (c *MetricsChannel) CommitCursor(sub string, offset uint64) error {
	start := time.Now()

	err := c.channel.CommitCursor(sub, offset)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("commit_cursor", duration, err)

	return err
}

// Acquire implements relay.Channel.Acquire with metrics collection
func (c *MetricsChannel) Acquire(ctx context.Context, sub, recordID string, offset uint64) error {
	start := time.Now()

	err := c.channel.Acquire(ctx, sub, recordID, offset)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("acquire_lease", duration, err)
	c.registry.RecordLeaseOperation("acquire", err)

	return err
}

// Release implements relay.Channel.Release with metrics collection
func (c *MetricsChannel) Release(ctx context.Context, sub, recordID string) error {
	start := time.Now()

	err := c.channel.Release(ctx, sub, recordID)
	duration := time.Since(start)

	c.registry.RecordDatabaseOperation("release_lease", duration, err)
	c.registry.RecordLeaseOperation("release", err)

	return err
}

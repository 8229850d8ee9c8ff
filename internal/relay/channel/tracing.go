package channel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relay/internal/relay"
	"relay/internal/relay/tracing"
)

// TracedChannel wraps a relay.Channel with distributed tracing
// Layer order: TracedChannel -> MetricsChannel -> Channel (real thing)
type TracedChannel struct {
	channel relay.Channel
	tracer  *tracing.Tracer
}

// NewTracedChannel creates a new traced channel that wraps a metrics channel
func NewTracedChannel(channel relay.Channel, tracer *tracing.Tracer) relay.Channel {
	return &TracedChannel{
		channel: channel,
		tracer:  tracer,
	}
}

// Append implements relay.Channel.Append with distributed tracing
func (c *TracedChannel) Append(ctx context.Context, rec relay.Record) error {
	ctx, span := c.tracer.StartSpan(ctx, "channel.append")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("append_record")...)
	span.SetAttributes(
		attribute.String("relay.record_id", rec.ID),
		attribute.Int64("relay.offset", int64(rec.Offset)),
	)

	err := c.channel.Append(ctx, rec)
	c.finish(ctx, span, err)

	return err
}

// Load implements relay.Channel.Load with distributed tracing
func (c *TracedChannel) Load(ctx context.Context, fromOffset uint64, limit int) ([]relay.Record, error) {
	ctx, span := c.tracer.StartSpan(ctx, "channel.load")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("load_records")...)
	span.SetAttributes(
		attribute.Int64("relay.from_offset", int64(fromOffset)),
		attribute.Int("relay.limit", limit),
	)

	records, err := c.channel.Load(ctx, fromOffset, limit)

	span.SetAttributes(attribute.Int("relay.records_loaded", len(records)))
	c.finish(ctx, span, err)

	return records, err
}

// NextOffset implements relay.Channel.NextOffset with distributed tracing
func (c *TracedChannel) NextOffset(ctx context.Context) (uint64, error) {
	ctx, span := c.tracer.StartSpan(ctx, "channel.next_offset")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("next_offset")...)

	offset, err := c.channel.NextOffset(ctx)
	c.finish(ctx, span, err)

	return offset, err
}

// CommitOffset implements relay.Channel.CommitOffset with distributed tracing
func (c *TracedChannel) CommitOffset(offset uint64) error {
	ctx, span := c.tracer.StartSpan(context.Background(), "channel.commit_offset")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("commit_offset")...)
	span.SetAttributes(attribute.Int64("relay.offset", int64(offset)))

	err := c.channel.CommitOffset(offset)
	c.finish(ctx, span, err)

	return err
}

// GetCursor implements relay.Channel.GetCursor with distributed tracing
func (c *TracedChannel) GetCursor(ctx context.Context, sub string) (uint64, error) {
	ctx, span := c.tracer.StartSpan(ctx, "channel.get_cursor")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("get_cursor")...)
	span.SetAttributes(attribute.String("relay.subscription", sub))

	offset, err := c.channel.GetCursor(ctx, sub)
	c.finish(ctx, span, err)

	return offset, err
}

// CommitCursor implements relay.Channel.CommitCursor with distributed tracing
func (c *TracedChannel) CommitCursor(sub string, offset uint64) error {
	ctx, span := c.tracer.StartSpan(context.Background(), "channel.commit_cursor")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("commit_cursor")...)
	span.SetAttributes(
		attribute.String("relay.subscription", sub),
		attribute.Int64("relay.offset", int64(offset)),
	)

	err := c.channel.CommitCursor(sub, offset)
	c.finish(ctx, span, err)

	return err
}

// Acquire implements relay.Channel.Acquire with distributed tracing
func (c *TracedChannel) Acquire(ctx context.Context, sub, recordID string, offset uint64) error {
	ctx, span := c.tracer.StartSpan(ctx, "channel.acquire_lease")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("acquire_lease")...)
	span.SetAttributes(
		attribute.String("relay.subscription", sub),
		attribute.String("relay.record_id", recordID),
	)

	err := c.channel.Acquire(ctx, sub, recordID, offset)
	c.finish(ctx, span, err)

	return err
}

// Release implements relay.Channel.Release with distributed tracing
func (c *TracedChannel) Release(ctx context.Context, sub, recordID string) error {
	ctx, span := c.tracer.StartSpan(ctx, "channel.release_lease")
	defer span.End()

	span.SetAttributes(c.tracer.DatabaseAttributes("release_lease")...)
	span.SetAttributes(
		attribute.String("relay.subscription", sub),
		attribute.String("relay.record_id", recordID),
	)

	err := c.channel.Release(ctx, sub, recordID)
	c.finish(ctx, span, err)

	return err
}

func (c *TracedChannel) finish(ctx context.Context, span trace.Span, err error) {
	if err != nil {
		c.tracer.RecordError(ctx, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(c.tracer.ErrorAttributes(err)...)
}

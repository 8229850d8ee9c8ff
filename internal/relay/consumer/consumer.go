// Package consumer glues the durable channel to the router: it pulls
// batches, decodes each record, fans the result out to the live transport,
// and owns the acknowledgement policy.
package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
	"relay/internal/validator"
)

type Consumer struct {
	channel     relay.Channel
	router      relay.Router
	broadcaster relay.Broadcaster
	registry    *metrics.Registry
	logger      *zap.Logger
	sub         string
	batchSize   int
}

func NewConsumer(channel relay.Channel, router relay.Router, broadcaster relay.Broadcaster, registry *metrics.Registry, logger *zap.Logger, sub string, batchSize int) (*Consumer, error) {
	c := Consumer{
		channel:     channel,
		router:      router,
		broadcaster: broadcaster,
		registry:    registry,
		logger:      logger,
		sub:         sub,
		batchSize:   batchSize,
	}

	if err := validator.Validate("consumer", c.channel, c.router, c.broadcaster, c.registry, c.sub, c.batchSize); err != nil {
		return nil, fmt.Errorf("failed to validate consumer deps: %w", err)
	}

	return &c, nil
}

// Pull implements relay.Consumer.Pull. Records in a batch are processed
// concurrently; a failure inside one record's routing is contained to that
// record and surfaces as a negative acknowledgement, never as a pull error.
func (c *Consumer) Pull(ctx context.Context) (int, error) {
	logger := c.logger.With(zap.String("sub", c.sub))

	offset, err := c.channel.GetCursor(ctx, c.sub)
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}

	recs, err := c.channel.Load(ctx, offset, c.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load records: %w", err)
	}

	logger.Debug("loaded records", zap.Int("count", len(recs)))

	leased := make([]relay.Record, 0, len(recs))
	for _, rec := range recs {
		err := c.channel.Acquire(ctx, c.sub, rec.ID, rec.Offset)
		switch {
		case err == nil:
			leased = append(leased, rec)
		case errors.Is(err, gocb.ErrDocumentExists):
			// another worker holds this record
		default:
			return 0, fmt.Errorf("failed to acquire lease for record %s: %w", rec.ID, err)
		}
	}

	logger.Debug("leased", zap.Int("count", len(leased)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.batchSize/2))
	for _, rec := range leased {
		rec := rec
		g.Go(func() error {
			return c.handle(gctx, logger, rec)
		})
	}

	if err := g.Wait(); err != nil {
		const msg = "failed to process records"
		logger.Error(msg, zap.Error(err))
		return len(leased), fmt.Errorf(msg+": %w", err)
	}

	return len(leased), nil
}

// handle walks one record through decode -> route -> broadcast -> ack. A
// structurally broken body is acknowledged and dropped since redelivery
// cannot fix it; routing and transport failures release the lease so the
// channel redelivers.
func (c *Consumer) handle(ctx context.Context, logger *zap.Logger, rec relay.Record) error {
	n, err := relay.Decode(rec.Body)
	if err != nil {
		c.registry.RecordParseFailure()
		logger.Warn("dropping malformed record", zap.String("recordId", rec.ID), zap.Error(err))
		return c.ack(ctx, logger, rec)
	}

	if _, unknown := n.(relay.Unrecognized); unknown {
		c.registry.RecordUnrecognizedKind()
		logger.Warn("dropping record of unrecognized kind",
			zap.String("recordId", rec.ID), zap.String("kind", string(n.Kind())))
		return c.ack(ctx, logger, rec)
	}

	payloads, err := c.router.Route(ctx, n)
	if err != nil {
		logger.Error("routing failed, releasing record for redelivery",
			zap.String("recordId", rec.ID), zap.Error(err))
		c.nack(ctx, logger, rec)
		return nil
	}

	for _, p := range payloads {
		if err := c.broadcaster.Broadcast(ctx, p); err != nil {
			logger.Error("broadcast failed, releasing record for redelivery",
				zap.String("recordId", rec.ID), zap.String("topic", string(p.Topic)), zap.Error(err))
			c.nack(ctx, logger, rec)
			return nil
		}
	}

	if err := c.ack(ctx, logger, rec); err != nil {
		const errMsg = "failed to ack record"
		logger.Error(errMsg, zap.String("recordId", rec.ID), zap.Error(err))
		return fmt.Errorf(errMsg+": %w", err)
	}

	return nil
}

func (c *Consumer) ack(ctx context.Context, logger *zap.Logger, rec relay.Record) error {
	logger.Debug("acknowledging record", zap.String("recordId", rec.ID))

	if err := c.channel.Release(ctx, c.sub, rec.ID); err != nil {
		return fmt.Errorf("failed to release lease for record %s: %w", rec.ID, err)
	}

	if err := c.channel.CommitCursor(c.sub, rec.Offset+1); err != nil {
		return fmt.Errorf("failed to commit cursor for sub %s: %w", c.sub, err)
	}

	logger.Debug("cursor committed past offset", zap.Uint64("offset", rec.Offset), zap.String("recordId", rec.ID))

	return nil
}

// nack releases the lease without touching the cursor. Best effort: if the
// release itself fails the lease expiry handles redelivery.
func (c *Consumer) nack(ctx context.Context, logger *zap.Logger, rec relay.Record) {
	if err := c.channel.Release(ctx, c.sub, rec.ID); err != nil {
		logger.Error("failed to release lease, waiting on expiry",
			zap.String("recordId", rec.ID), zap.Error(err))
	}
}

// Package channel implements the durable notification channel on Couchbase:
// record persistence, append offsets, per-subscription cursors, and
// lease-based delivery claims with distributed-transaction commits.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
	"relay/internal/relay"
	"relay/internal/validator"
)

// leaseTimeout bounds how long a worker may hold a record before it becomes
// eligible for redelivery.
const leaseTimeout = time.Minute

// recordExpiry keeps the channel from growing without bound; a week of
// notifications comfortably outlives any consumer outage worth recovering.
const recordExpiry = 7 * 24 * time.Hour

// Channel is the concrete relay.Channel backed by Couchbase collections.
type Channel struct {
	records      *couchbase.Couchbase[relay.Record]
	cursors      *couchbase.Couchbase[relay.Cursor]
	offsets      *couchbase.Couchbase[relay.Offset]
	leases       *couchbase.Couchbase[relay.Lease]
	transactions *couchbase.Transactions
	name         string
	bucket       string
	scope        string
}

func NewChannel(
	records *couchbase.Couchbase[relay.Record],
	cursors *couchbase.Couchbase[relay.Cursor],
	offsets *couchbase.Couchbase[relay.Offset],
	leases *couchbase.Couchbase[relay.Lease],
	transactions *couchbase.Transactions,
	name, bucket, scope string,
) (*Channel, error) {
	c := Channel{
		records:      records,
		cursors:      cursors,
		offsets:      offsets,
		leases:       leases,
		transactions: transactions,
		name:         name,
		bucket:       bucket,
		scope:        scope,
	}

	if err := validator.Validate(
		"channel",
		c.records,
		c.cursors,
		c.offsets,
		c.leases,
		c.transactions,
		c.name,
		c.bucket,
		c.scope,
	); err != nil {
		return nil, fmt.Errorf("failed to validate channel dependencies: %w", err)
	}

	return &c, nil
}

// Append implements relay.Channel.Append. Records expire after a week;
// appending over an existing offset returns the SDK's document-exists error
// for the publisher's idempotency check.
func (c *Channel) Append(ctx context.Context, rec relay.Record) error {
	if err := c.records.Insert(
		ctx,
		rec.ID,
		rec,
		&gocb.InsertOptions{
			Expiry: recordExpiry,
		},
	); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// Load implements relay.Channel.Load using a N1QL query ordered by offset.
func (c *Channel) Load(ctx context.Context, fromOffset uint64, limit int) ([]relay.Record, error) {
	query := fmt.Sprintf(`
		SELECT RAW r
		FROM %s.%s.%s r
		WHERE`+"`offset`"+` >= %d
		AND r.channel = '%s'
		ORDER BY`+"`offset`"+`ASC
		LIMIT %d`,
		c.bucket,
		c.scope,
		c.records.Collection().Name(),
		fromOffset,
		c.name,
		limit,
	)

	records, err := c.records.Query(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	return records, nil
}

// NextOffset implements relay.Channel.NextOffset.
func (c *Channel) NextOffset(ctx context.Context) (uint64, error) {
	key := relay.OffsetKey(c.name)

	offset, err := c.offsets.Get(ctx, key, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get offset: %w", err)
	}

	return offset.N, nil
}

// CommitOffset implements relay.Channel.CommitOffset using a distributed
// transaction with max-wins semantics across concurrent publishers.
func (c *Channel) CommitOffset(offset uint64) error {
	key := relay.OffsetKey(c.name)

	_, err := c.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		retry := true
		for retry {
			retry = false

			res, err := r.Get(c.offsets, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				doc := relay.Offset{ID: key, N: offset}
				_, err := r.Insert(c.offsets, key, doc)
				switch {
				case err == nil:
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					// lost the race to create it, re-read and compare
					retry = true
					continue
				default:
					return fmt.Errorf("failed to insert new offset: %w", err)
				}
			default:
				return fmt.Errorf("failed to get offset for channel %s: %w", c.name, err)
			}

			var existing relay.Offset
			if err := res.Content(&existing); err != nil {
				return fmt.Errorf("failed to decode offset: %w", err)
			}

			if offset <= existing.N {
				// a concurrent publisher already moved past this offset
				return nil
			}

			existing.N = offset
			if _, err := r.Replace(res, existing); err != nil {
				return fmt.Errorf("failed to replace offset: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to commit offset for channel %s: %w", c.name, err)
	}

	return nil
}

// GetCursor implements relay.Channel.GetCursor. A subscription that has
// never committed reads from the start of the channel.
func (c *Channel) GetCursor(ctx context.Context, sub string) (uint64, error) {
	key := relay.CursorKey(c.name, sub)

	cur, err := c.cursors.Get(ctx, key, nil)
	switch {
	case err == nil:
		return cur.Offset, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
}

// CommitCursor implements relay.Channel.CommitCursor using a distributed
// transaction. Concurrent workers acking out of order cannot move the cursor
// backwards.
func (c *Channel) CommitCursor(sub string, offset uint64) error {
	key := relay.CursorKey(c.name, sub)

	_, err := c.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		retry := true
		for retry {
			retry = false

			res, err := r.Get(c.cursors, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				cursor := relay.Cursor{
					ID:      key,
					Channel: c.name,
					Sub:     sub,
					Offset:  offset,
				}
				_, err := r.Insert(c.cursors, key, cursor)
				switch {
				case err == nil:
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					// lost the race to create it, re-read and compare
					retry = true
					continue
				default:
					return fmt.Errorf("failed to insert new cursor: %w", err)
				}
			default:
				return fmt.Errorf("failed to get cursor: %w", err)
			}

			var cursor relay.Cursor
			if err := res.Content(&cursor); err != nil {
				return fmt.Errorf("failed to decode cursor: %w", err)
			}

			if offset <= cursor.Offset {
				// another worker already committed further along
				return nil
			}

			cursor.Offset = offset
			if _, err := r.Replace(res, cursor); err != nil {
				return fmt.Errorf("failed to replace cursor: %w", err)
			}
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("failed to commit cursor: %w", err)
	}

	return nil
}

// Acquire implements relay.Channel.Acquire. The lease document expires with
// the claim so a crashed worker's records come back on their own.
func (c *Channel) Acquire(ctx context.Context, sub, recordID string, offset uint64) error {
	key := relay.LeaseKey(sub, recordID)

	lease := relay.Lease{
		ID:       key,
		Sub:      sub,
		RecordID: recordID,
		Offset:   offset,
		Expires:  time.Now().UTC().Add(leaseTimeout),
	}

	if err := c.leases.Insert(ctx, key, lease, &gocb.InsertOptions{
		Expiry: leaseTimeout,
	}); err != nil {
		return fmt.Errorf("failed to insert lease: %w", err)
	}

	return nil
}

// Release implements relay.Channel.Release. Safe for an expired or missing
// lease.
func (c *Channel) Release(ctx context.Context, sub, recordID string) error {
	key := relay.LeaseKey(sub, recordID)

	if err := c.leases.Remove(ctx, key, nil); err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete lease: %w", err)
	}

	return nil
}

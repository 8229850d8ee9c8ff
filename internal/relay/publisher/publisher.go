// Package publisher places encoded notifications onto the durable channel.
// The CRUD services call it after a successful write; a publish failure is
// never allowed to fail the write that triggered it.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/relay"
	"relay/internal/validator"
)

type Publisher struct {
	channel relay.Channel
	name    string
}

func NewPublisher(channel relay.Channel, name string) (*Publisher, error) {
	p := Publisher{
		channel: channel,
		name:    name,
	}

	if err := validator.Validate("publisher", p.channel, p.name); err != nil {
		return nil, fmt.Errorf("failed to validate publisher deps: %w", err)
	}

	return &p, nil
}

// maxPublishAttempts bounds the offset race between concurrent publishers.
const maxPublishAttempts = 5

// Publish implements relay.Publisher.Publish: encode, append at the next
// offset, advance the offset. An append colliding with a record another
// publisher won retries at the next free slot so neither notification is
// lost.
func (p *Publisher) Publish(ctx context.Context, n relay.Notification) (*relay.Receipt, error) {
	body, err := relay.Encode(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification: %w", err)
	}

	offset, err := p.nextOffset(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxPublishAttempts; attempt++ {
		rec := relay.Record{
			ID:          relay.RecordKey(p.name, offset),
			Channel:     p.name,
			Offset:      offset,
			Body:        body,
			PublishTime: ptr(time.Now().UTC()),
		}

		err := p.channel.Append(ctx, rec)
		switch {
		case err == nil:
			if err := p.channel.CommitOffset(offset + 1); err != nil {
				return nil, fmt.Errorf("failed to commit offset for channel %s: %w", p.name, err)
			}
			return &relay.Receipt{RecordID: rec.ID, Offset: offset}, nil
		case errors.Is(err, gocb.ErrDocumentExists):
			// a concurrent publisher claimed this slot; the re-read may
			// still lag its offset commit, so always advance past the slot
			// that just collided
			next, err := p.nextOffset(ctx)
			if err != nil {
				return nil, err
			}
			if next <= offset {
				next = offset + 1
			}
			offset = next
		default:
			return nil, fmt.Errorf("failed to append record with ID %s: %w", rec.ID, err)
		}
	}

	return nil, fmt.Errorf("failed to claim a slot on channel %s after %d attempts", p.name, maxPublishAttempts)
}

func (p *Publisher) nextOffset(ctx context.Context) (uint64, error) {
	offset, err := p.channel.NextOffset(ctx)
	switch {
	case err == nil:
		return offset, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to get offset for channel %s: %w", p.name, err)
	}
}

// Disabled is the publisher used when no durable channel is configured. It
// satisfies the contract by reporting an absent receipt, so callers carry on
// without live notifications.
type Disabled struct{}

func (Disabled) Publish(ctx context.Context, n relay.Notification) (*relay.Receipt, error) {
	return nil, nil
}

// Typed exposes one publish call per notification kind, the surface the CRUD
// services program against.
type Typed struct {
	relay.Publisher
}

func NewTyped(p relay.Publisher) Typed {
	return Typed{Publisher: p}
}

func (t Typed) EventCreated(ctx context.Context, eventID int64, campusID, organizerID *int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.EventCreated{EventID: &eventID, CampusID: campusID, OrganizerID: organizerID})
}

func (t Typed) EventUpdated(ctx context.Context, eventID int64, campusID, organizerID *int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.EventUpdated{EventID: &eventID, CampusID: campusID, OrganizerID: organizerID})
}

func (t Typed) EventDeleted(ctx context.Context, eventID int64, campusID, organizerID *int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.EventDeleted{EventID: &eventID, CampusID: campusID, OrganizerID: organizerID})
}

func (t Typed) EventCancelled(ctx context.Context, eventID int64, campusID, organizerID *int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.EventCancelled{EventID: &eventID, CampusID: campusID, OrganizerID: organizerID})
}

func (t Typed) TicketPurchased(ctx context.Context, eventID, userID int64, campusID *int64, ticketType string, ticketsSold, remainingCapacity int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.TicketPurchased{
		EventID:           &eventID,
		UserID:            &userID,
		CampusID:          campusID,
		TicketType:        &ticketType,
		TicketsSold:       &ticketsSold,
		RemainingCapacity: &remainingCapacity,
	})
}

func (t Typed) OrganizationUpdated(ctx context.Context, organizationID int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.OrganizationUpdated{OrganizationID: &organizationID})
}

func (t Typed) AnalyticsUpdated(ctx context.Context, organizerID int64, eventID *int64) (*relay.Receipt, error) {
	return t.Publish(ctx, relay.AnalyticsUpdated{OrganizerID: &organizerID, EventID: eventID})
}

func ptr[T any](v T) *T {
	return &v
}

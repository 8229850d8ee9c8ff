// Package readmodel resolves event snapshots from the ticketing read model.
// The gateway reads the events collection directly; the cache wraps it with
// a short-lived Redis layer so enrichment does not hammer the database on
// bursty fan-outs.
package readmodel

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
	"relay/internal/relay"
	"relay/internal/validator"
)

// Gateway is the concrete relay.ReadModel backed by the events collection.
type Gateway struct {
	snapshots *couchbase.Couchbase[relay.EventSnapshot]
}

// NewGateway creates a read-model gateway over the snapshots store.
func NewGateway(snapshots *couchbase.Couchbase[relay.EventSnapshot]) (*Gateway, error) {
	g := Gateway{
		snapshots: snapshots,
	}

	if err := validator.Validate("readmodel gateway", g.snapshots); err != nil {
		return nil, fmt.Errorf("failed to validate gateway dependencies: %w", err)
	}

	return &g, nil
}

// GetEventByID implements relay.ReadModel.GetEventByID. A missing snapshot is
// not an error; routing degrades gracefully when an event is unknown.
func (g *Gateway) GetEventByID(ctx context.Context, eventID int64) (*relay.EventSnapshot, error) {
	snap, err := g.snapshots.Get(ctx, relay.SnapshotKey(eventID), nil)
	switch {
	case err == nil:
		return snap, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to get event snapshot %d: %w", eventID, err)
	}
}

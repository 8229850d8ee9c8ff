// Package router implements the fan-out policy: which topics receive a given
// domain-change notification, and with what payload.
package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
	"relay/internal/validator"
)

// Router maps one notification to its outbound payloads. It is a pure
// decision engine except for the read-model lookup used to embed snapshots
// on event creation and update.
type Router struct {
	readModel relay.ReadModel
	registry  *metrics.Registry
	logger    *zap.Logger
}

func NewRouter(readModel relay.ReadModel, registry *metrics.Registry, logger *zap.Logger) (*Router, error) {
	r := Router{
		readModel: readModel,
		registry:  registry,
		logger:    logger,
	}

	if err := validator.Validate("router", r.readModel, r.registry, r.logger); err != nil {
		return nil, fmt.Errorf("failed to validate router deps: %w", err)
	}

	return &r, nil
}

// Route implements relay.Router. Unrecognized kinds return zero payloads and
// no error; enrichment failures degrade to ID-only payloads rather than
// failing the message.
func (r *Router) Route(ctx context.Context, n relay.Notification) ([]relay.OutboundPayload, error) {
	switch v := n.(type) {
	case relay.EventCreated:
		return r.routeEventChange(ctx, v.Kind(), v.EventID, v.CampusID, v.OrganizerID, eventRouteOpts{enrich: true}), nil
	case relay.EventUpdated:
		return r.routeEventChange(ctx, v.Kind(), v.EventID, v.CampusID, v.OrganizerID, eventRouteOpts{enrich: true, perEventTopic: true, resolveFromSnapshot: true}), nil
	case relay.EventDeleted:
		return r.routeEventChange(ctx, v.Kind(), v.EventID, v.CampusID, v.OrganizerID, eventRouteOpts{perEventTopic: true}), nil
	case relay.EventCancelled:
		return r.routeEventChange(ctx, v.Kind(), v.EventID, v.CampusID, v.OrganizerID, eventRouteOpts{perEventTopic: true}), nil
	case relay.TicketPurchased:
		return r.routeTicketPurchased(v), nil
	case relay.OrganizationUpdated:
		return r.routeOrganizationUpdated(v), nil
	case relay.AnalyticsUpdated:
		return r.routeAnalyticsUpdated(v), nil
	default:
		r.logger.Warn("dropping notification of unrecognized kind", zap.String("kind", string(n.Kind())))
		return nil, nil
	}
}

// eventRouteOpts tunes routeEventChange per lifecycle kind: enrich controls
// the snapshot lookup (deletions and cancellations carry IDs only since the
// entity may be gone), perEventTopic adds the event:{id} topic (creation has
// no audience there yet), and resolveFromSnapshot fills campus/organizer IDs
// missing from the message out of the fetched snapshot.
type eventRouteOpts struct {
	enrich              bool
	perEventTopic       bool
	resolveFromSnapshot bool
}

func (r *Router) routeEventChange(ctx context.Context, kind relay.Kind, eventID, campusID, organizerID *int64, opts eventRouteOpts) []relay.OutboundPayload {
	var snapshot *relay.EventSnapshot
	if opts.enrich && eventID != nil {
		snap, err := r.readModel.GetEventByID(ctx, *eventID)
		switch {
		case err != nil:
			r.registry.RecordEnrichment("error")
			r.logger.Warn("snapshot lookup failed, routing without enrichment",
				zap.Int64("eventId", *eventID), zap.String("kind", string(kind)), zap.Error(err))
		case snap == nil:
			r.registry.RecordEnrichment("absent")
			r.logger.Warn("event absent from read model, routing without enrichment",
				zap.Int64("eventId", *eventID), zap.String("kind", string(kind)))
		default:
			r.registry.RecordEnrichment("hit")
			snapshot = snap
		}
	}

	// the message may omit campus and organizer; a fetched snapshot fills
	// them in so the right dashboards still hear about the change
	if opts.resolveFromSnapshot && snapshot != nil {
		if campusID == nil {
			campusID = &snapshot.CampusID
		}
		if organizerID == nil {
			organizerID = &snapshot.OrganizerID
		}
	}

	body := relay.EventChangeBody{
		Type:        kind,
		EventID:     eventID,
		CampusID:    campusID,
		OrganizerID: organizerID,
		Event:       snapshot,
	}

	payloads := []relay.OutboundPayload{
		{Topic: relay.TopicAllEvents, Body: body},
	}
	if opts.perEventTopic && eventID != nil {
		payloads = append(payloads, relay.OutboundPayload{Topic: relay.EventTopic(*eventID), Body: body})
	}
	if campusID != nil {
		payloads = append(payloads, relay.OutboundPayload{Topic: relay.CampusTopic(*campusID), Body: body})
	}
	if organizerID != nil {
		payloads = append(payloads, relay.OutboundPayload{Topic: relay.OrganizationTopic(*organizerID), Body: body})
	}

	return payloads
}

// routeTicketPurchased splits the purchase into a private confirmation for
// the buyer and a public capacity update. The public payload carries counts
// only; clients watching the event see capacity drop without learning who
// bought the ticket.
func (r *Router) routeTicketPurchased(n relay.TicketPurchased) []relay.OutboundPayload {
	var payloads []relay.OutboundPayload

	if n.UserID != nil {
		payloads = append(payloads, relay.OutboundPayload{
			Topic: relay.UserTicketsTopic(*n.UserID),
			Body: relay.TicketConfirmationBody{
				Type:       relay.KindTicketPurchased,
				EventID:    n.EventID,
				TicketType: n.TicketType,
				Status:     "confirmed",
			},
		})
	}

	if n.EventID != nil {
		capacity := relay.CapacityBody{
			Type:              relay.KindCapacityUpdated,
			EventID:           *n.EventID,
			TicketsSold:       n.TicketsSold,
			AvailableCapacity: n.RemainingCapacity,
		}

		payloads = append(payloads,
			relay.OutboundPayload{Topic: relay.EventTopic(*n.EventID), Body: capacity},
			relay.OutboundPayload{Topic: relay.TopicAllEvents, Body: capacity},
		)
		if n.CampusID != nil {
			payloads = append(payloads, relay.OutboundPayload{Topic: relay.CampusTopic(*n.CampusID), Body: capacity})
		}
	}

	return payloads
}

func (r *Router) routeOrganizationUpdated(n relay.OrganizationUpdated) []relay.OutboundPayload {
	if n.OrganizationID == nil {
		r.logger.Warn("organization update without an organization ID, nothing to route")
		return nil
	}

	body := relay.OrganizationBody{
		Type:           relay.KindOrganizationUpdated,
		OrganizationID: *n.OrganizationID,
	}

	return []relay.OutboundPayload{
		{Topic: relay.TopicAllEvents, Body: body},
		{Topic: relay.OrganizationTopic(*n.OrganizationID), Body: body},
	}
}

func (r *Router) routeAnalyticsUpdated(n relay.AnalyticsUpdated) []relay.OutboundPayload {
	body := relay.AnalyticsBody{
		Type:        relay.KindAnalyticsUpdated,
		OrganizerID: n.OrganizerID,
		EventID:     n.EventID,
	}

	var payloads []relay.OutboundPayload
	if n.OrganizerID != nil {
		payloads = append(payloads,
			relay.OutboundPayload{Topic: relay.OrganizationTopic(*n.OrganizerID), Body: body},
			relay.OutboundPayload{Topic: relay.OrganizationAnalyticsTopic(*n.OrganizerID), Body: body},
		)
	}
	if n.EventID != nil {
		payloads = append(payloads, relay.OutboundPayload{Topic: relay.EventAnalyticsTopic(*n.EventID), Body: body})
	}

	return payloads
}

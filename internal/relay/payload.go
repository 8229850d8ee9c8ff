package relay

// OutboundPayload is one resolved, topic-addressed message ready for the
// live-connection transport. A payload is never built without a resolvable
// destination.
type OutboundPayload struct {
	Topic Topic `json:"topic"`
	Body  any   `json:"body"`
}

// EventChangeBody fans out on event lifecycle notifications. Event is the
// full snapshot when enrichment succeeded, so dashboards can render the card
// without a follow-up request; deletions and failed lookups carry IDs only.
type EventChangeBody struct {
	Type        Kind           `json:"type"`
	EventID     *int64         `json:"eventId,omitempty"`
	CampusID    *int64         `json:"campusId,omitempty"`
	OrganizerID *int64         `json:"organizerId,omitempty"`
	Event       *EventSnapshot `json:"event,omitempty"`
}

// CapacityBody is the public side of a ticket purchase: aggregate counts
// only, nothing that identifies the buyer.
type CapacityBody struct {
	Type              Kind   `json:"type"`
	EventID           int64  `json:"eventId"`
	TicketsSold       *int64 `json:"ticketsSold,omitempty"`
	AvailableCapacity *int64 `json:"availableCapacity,omitempty"`
}

// KindCapacityUpdated is the discriminator on CapacityBody frames. It exists
// only outbound; it is not an inbound notification kind.
const KindCapacityUpdated Kind = "CAPACITY_UPDATED"

// TicketConfirmationBody is the private side of a ticket purchase, delivered
// only on the buyer's own queue.
type TicketConfirmationBody struct {
	Type       Kind    `json:"type"`
	EventID    *int64  `json:"eventId,omitempty"`
	TicketType *string `json:"ticketType,omitempty"`
	Status     string  `json:"status"`
}

// OrganizationBody fans out on organization profile changes.
type OrganizationBody struct {
	Type           Kind  `json:"type"`
	OrganizationID int64 `json:"organizationId"`
}

// AnalyticsBody fans out on recomputed analytics.
type AnalyticsBody struct {
	Type        Kind   `json:"type"`
	OrganizerID *int64 `json:"organizerId,omitempty"`
	EventID     *int64 `json:"eventId,omitempty"`
}

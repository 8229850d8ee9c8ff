package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the type of a domain-change notification on the wire.
type Kind string

const (
	KindEventCreated        Kind = "EVENT_CREATED"
	KindEventUpdated        Kind = "EVENT_UPDATED"
	KindEventDeleted        Kind = "EVENT_DELETED"
	KindEventCancelled      Kind = "EVENT_CANCELLED"
	KindTicketPurchased     Kind = "TICKET_PURCHASED"
	KindOrganizationUpdated Kind = "ORGANIZATION_UPDATED"
	KindAnalyticsUpdated    Kind = "ANALYTICS_UPDATED"
)

// ErrMissingKind is returned by Decode when the payload has no usable "type"
// field. Messages failing this way cannot be fixed by redelivery.
var ErrMissingKind = errors.New("notification has no type field")

// Notification is the tagged union of every domain-change message the relay
// understands. Every field besides the kind is optional on the wire, so
// variants carry pointers and routing checks presence rather than assuming it.
type Notification interface {
	Kind() Kind
}

// EventCreated announces a newly created event.
type EventCreated struct {
	EventID     *int64
	CampusID    *int64
	OrganizerID *int64
}

func (EventCreated) Kind() Kind { return KindEventCreated }

// EventUpdated announces a change to an existing event.
type EventUpdated struct {
	EventID     *int64
	CampusID    *int64
	OrganizerID *int64
}

func (EventUpdated) Kind() Kind { return KindEventUpdated }

// EventDeleted announces removal of an event. The entity may already be gone
// from the read model, so deletions are never enriched.
type EventDeleted struct {
	EventID     *int64
	CampusID    *int64
	OrganizerID *int64
}

func (EventDeleted) Kind() Kind { return KindEventDeleted }

// EventCancelled announces cancellation of an event.
type EventCancelled struct {
	EventID     *int64
	CampusID    *int64
	OrganizerID *int64
}

func (EventCancelled) Kind() Kind { return KindEventCancelled }

// TicketPurchased announces a completed ticket purchase. The buyer identity
// only ever reaches the buyer's own queue; the aggregate counts fan out
// publicly.
type TicketPurchased struct {
	EventID           *int64
	CampusID          *int64
	UserID            *int64
	TicketType        *string
	TicketsSold       *int64
	RemainingCapacity *int64
}

func (TicketPurchased) Kind() Kind { return KindTicketPurchased }

// OrganizationUpdated announces a change to an organization's profile.
type OrganizationUpdated struct {
	OrganizationID *int64
}

func (OrganizationUpdated) Kind() Kind { return KindOrganizationUpdated }

// AnalyticsUpdated announces recomputed analytics for an organizer and,
// optionally, one of its events.
type AnalyticsUpdated struct {
	OrganizerID *int64
	EventID     *int64
}

func (AnalyticsUpdated) Kind() Kind { return KindAnalyticsUpdated }

// Unrecognized is the decode result for a structurally valid message whose
// type the relay does not know. It routes to nothing; new producers must not
// crash old consumers.
type Unrecognized struct {
	Type string
}

func (u Unrecognized) Kind() Kind { return Kind(u.Type) }

type wire struct {
	Type              string          `json:"type"`
	EventID           json.RawMessage `json:"eventId,omitempty"`
	CampusID          json.RawMessage `json:"campusId,omitempty"`
	OrganizerID       json.RawMessage `json:"organizerId,omitempty"`
	OrganizationID    json.RawMessage `json:"organizationId,omitempty"`
	UserID            json.RawMessage `json:"userId,omitempty"`
	TicketType        json.RawMessage `json:"ticketType,omitempty"`
	TicketsSold       json.RawMessage `json:"ticketsSold,omitempty"`
	RemainingCapacity json.RawMessage `json:"remainingCapacity,omitempty"`
}

// Decode parses a durable-channel payload into its Notification variant.
// It fails only on malformed JSON or a missing type; unknown types decode to
// Unrecognized so the consumer can ack and drop them.
func Decode(data []byte) (Notification, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if strings.TrimSpace(w.Type) == "" {
		return nil, ErrMissingKind
	}

	switch Kind(w.Type) {
	case KindEventCreated:
		return EventCreated{
			EventID:     coerceID(w.EventID),
			CampusID:    coerceID(w.CampusID),
			OrganizerID: coerceID(w.OrganizerID),
		}, nil
	case KindEventUpdated:
		return EventUpdated{
			EventID:     coerceID(w.EventID),
			CampusID:    coerceID(w.CampusID),
			OrganizerID: coerceID(w.OrganizerID),
		}, nil
	case KindEventDeleted:
		return EventDeleted{
			EventID:     coerceID(w.EventID),
			CampusID:    coerceID(w.CampusID),
			OrganizerID: coerceID(w.OrganizerID),
		}, nil
	case KindEventCancelled:
		return EventCancelled{
			EventID:     coerceID(w.EventID),
			CampusID:    coerceID(w.CampusID),
			OrganizerID: coerceID(w.OrganizerID),
		}, nil
	case KindTicketPurchased:
		return TicketPurchased{
			EventID:           coerceID(w.EventID),
			CampusID:          coerceID(w.CampusID),
			UserID:            coerceID(w.UserID),
			TicketType:        coerceString(w.TicketType),
			TicketsSold:       coerceID(w.TicketsSold),
			RemainingCapacity: coerceID(w.RemainingCapacity),
		}, nil
	case KindOrganizationUpdated:
		// the CRUD services have used both spellings for the org ID
		id := coerceID(w.OrganizationID)
		if id == nil {
			id = coerceID(w.OrganizerID)
		}
		return OrganizationUpdated{OrganizationID: id}, nil
	case KindAnalyticsUpdated:
		return AnalyticsUpdated{
			OrganizerID: coerceID(w.OrganizerID),
			EventID:     coerceID(w.EventID),
		}, nil
	default:
		return Unrecognized{Type: w.Type}, nil
	}
}

// Encode serializes a Notification into the wire shape Decode accepts. This
// is the contract the publisher and the CRUD services share.
func Encode(n Notification) ([]byte, error) {
	var w wire

	switch v := n.(type) {
	case EventCreated:
		w = wire{EventID: rawID(v.EventID), CampusID: rawID(v.CampusID), OrganizerID: rawID(v.OrganizerID)}
	case EventUpdated:
		w = wire{EventID: rawID(v.EventID), CampusID: rawID(v.CampusID), OrganizerID: rawID(v.OrganizerID)}
	case EventDeleted:
		w = wire{EventID: rawID(v.EventID), CampusID: rawID(v.CampusID), OrganizerID: rawID(v.OrganizerID)}
	case EventCancelled:
		w = wire{EventID: rawID(v.EventID), CampusID: rawID(v.CampusID), OrganizerID: rawID(v.OrganizerID)}
	case TicketPurchased:
		w = wire{
			EventID:           rawID(v.EventID),
			CampusID:          rawID(v.CampusID),
			UserID:            rawID(v.UserID),
			TicketsSold:       rawID(v.TicketsSold),
			RemainingCapacity: rawID(v.RemainingCapacity),
		}
		if v.TicketType != nil {
			raw, err := json.Marshal(*v.TicketType)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal ticket type: %w", err)
			}
			w.TicketType = raw
		}
	case OrganizationUpdated:
		w = wire{OrganizationID: rawID(v.OrganizationID)}
	case AnalyticsUpdated:
		w = wire{OrganizerID: rawID(v.OrganizerID), EventID: rawID(v.EventID)}
	default:
		return nil, fmt.Errorf("cannot encode notification of type %T", n)
	}

	w.Type = string(n.Kind())

	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	return data, nil
}

// coerceID parses an identifier that may arrive as a JSON number, an
// integral float, or a numeric string. Anything else counts as absent rather
// than failing the whole message.
func coerceID(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return &i
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			i := int64(f)
			return &i
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return &i
		}
	}

	return nil
}

func coerceString(raw json.RawMessage) *string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}

	return &s
}

func rawID(id *int64) json.RawMessage {
	if id == nil {
		return nil
	}
	return json.RawMessage(strconv.FormatInt(*id, 10))
}

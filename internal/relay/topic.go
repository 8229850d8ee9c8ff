package relay

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic is a named destination that live client connections subscribe to.
// One inbound notification fans out to zero or more topics.
type Topic string

// TopicAllEvents is the global dashboard feed every connected client receives.
const TopicAllEvents Topic = "all-events"

// Scope classifies which subscription index resolves a topic's audience.
type Scope string

const (
	ScopeAll          Scope = "all"
	ScopeEvent        Scope = "event"
	ScopeCampus       Scope = "campus"
	ScopeOrganization Scope = "organization"
	ScopeUser         Scope = "user"
)

func EventTopic(id int64) Topic {
	return Topic(fmt.Sprintf("event:%d", id))
}

func CampusTopic(id int64) Topic {
	return Topic(fmt.Sprintf("campus:%d", id))
}

func OrganizationTopic(id int64) Topic {
	return Topic(fmt.Sprintf("organization:%d", id))
}

// UserTicketsTopic is the private per-user queue for ticket confirmations.
func UserTicketsTopic(userID int64) Topic {
	return Topic(fmt.Sprintf("user:%d:tickets", userID))
}

func EventAnalyticsTopic(id int64) Topic {
	return Topic(fmt.Sprintf("event:%d:analytics", id))
}

func OrganizationAnalyticsTopic(id int64) Topic {
	return Topic(fmt.Sprintf("organization:%d:analytics", id))
}

// Address is a parsed Topic: the scope and entity ID that pick the audience.
// Qualified topics (e.g. the :analytics feeds) deliver to the same audience
// as their base topic; the full topic string on the frame disambiguates.
type Address struct {
	Scope     Scope
	ID        int64
	Qualifier string
}

// ParseTopic splits a destination topic into its Address. The transport uses
// this to resolve which registered sessions receive a payload.
func ParseTopic(t Topic) (Address, error) {
	if t == TopicAllEvents {
		return Address{Scope: ScopeAll}, nil
	}

	parts := strings.Split(string(t), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Address{}, fmt.Errorf("unresolvable topic %q", t)
	}

	var scope Scope
	switch parts[0] {
	case "event":
		scope = ScopeEvent
	case "campus":
		scope = ScopeCampus
	case "organization":
		scope = ScopeOrganization
	case "user":
		scope = ScopeUser
	default:
		return Address{}, fmt.Errorf("unresolvable topic %q", t)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Address{}, fmt.Errorf("topic %q has a non-numeric ID: %w", t, err)
	}

	addr := Address{Scope: scope, ID: id}
	if len(parts) == 3 {
		addr.Qualifier = parts[2]
	}

	return addr, nil
}

package relay

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"relay/internal/couchbase"
)

// EventSnapshot is a point-in-time read of an event from the read model,
// embedded into outbound payloads so clients can render without re-querying.
type EventSnapshot struct {
	ID          int64     `json:"id"`
	OrganizerID int64     `json:"organizerId"`
	CampusID    int64     `json:"campusId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Capacity    int64     `json:"capacity"`
	TicketsSold int64     `json:"ticketsSold"`
	Cost        float64   `json:"cost"`
	Tags        []string  `json:"tags,omitempty"`

	couchbase.Cas `json:"-"`
}

func NewSnapshotsStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[EventSnapshot], error) {
	collection := bucket.Scope(scope).Collection("events")
	store, err := couchbase.NewCouchbase[EventSnapshot](cluster, bucket, collection)
	if err != nil {
		return nil, err
	}

	return store, nil
}

func SnapshotKey(eventID int64) string {
	return fmt.Sprintf("event::%d", eventID)
}

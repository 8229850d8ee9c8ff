package relay

import "context"

// Receipt describes where a published notification landed on the channel.
type Receipt struct {
	RecordID string
	Offset   uint64
}

// Publisher places domain-change notifications onto the durable channel.
// Publishing is best-effort from the caller's point of view: a disabled
// channel yields a nil receipt and nil error, never a failure that could
// abort the originating write.
type Publisher interface {
	Publish(ctx context.Context, n Notification) (*Receipt, error)
}

// Router resolves one notification into its set of topic-addressed payloads.
// Routing the same notification twice yields the same payloads.
type Router interface {
	Route(ctx context.Context, n Notification) ([]OutboundPayload, error)
}

// Broadcaster pushes a resolved payload to every live session subscribed to
// its destination topic.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload OutboundPayload) error
}

// ReadModel is the collaborator contract for snapshot enrichment. A missing
// event returns (nil, nil); callers treat transient errors as absence.
type ReadModel interface {
	GetEventByID(ctx context.Context, id int64) (*EventSnapshot, error)
}

package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
	"relay/internal/relay/registry"
)

func newTestHub(t *testing.T) (*Hub, *registry.Registry) {
	t.Helper()

	reg := registry.New()
	hub, err := NewHub(reg, metrics.NewRegistry(), zap.NewNop())
	require.NoError(t, err)

	return hub, reg
}

// attachSession wires a client without a live connection; only the send
// queue matters for delivery tests.
func attachSession(t *testing.T, hub *Hub, reg *registry.Registry, sessionID string) *Client {
	t.Helper()

	client := newClient(sessionID, nil, hub, reg, zap.NewNop())
	hub.attach(client)
	return client
}

func receivedFrame(t *testing.T, client *Client) Frame {
	t.Helper()

	select {
	case data := <-client.send:
		var frame Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		return frame
	default:
		t.Fatalf("session %s received nothing", client.sessionID)
		return Frame{}
	}
}

func requireNothingReceived(t *testing.T, client *Client) {
	t.Helper()

	select {
	case data := <-client.send:
		t.Fatalf("session %s unexpectedly received %s", client.sessionID, data)
	default:
	}
}

func TestBroadcastAllEventsReachesEverySession(t *testing.T) {
	hub, reg := newTestHub(t)
	c1 := attachSession(t, hub, reg, "s1")
	c2 := attachSession(t, hub, reg, "s2")

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.TopicAllEvents,
		Body:  map[string]any{"type": "EVENT_CREATED"},
	})
	require.NoError(t, err)

	require.Equal(t, relay.TopicAllEvents, receivedFrame(t, c1).Topic)
	require.Equal(t, relay.TopicAllEvents, receivedFrame(t, c2).Topic)
}

func TestBroadcastEventTopicReachesSubscribersOnly(t *testing.T) {
	hub, reg := newTestHub(t)
	subscriber := attachSession(t, hub, reg, "s1")
	bystander := attachSession(t, hub, reg, "s2")

	reg.SubscribeEvent("s1", 5)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.EventTopic(5),
		Body:  map[string]any{"type": "CAPACITY_UPDATED"},
	})
	require.NoError(t, err)

	require.Equal(t, relay.EventTopic(5), receivedFrame(t, subscriber).Topic)
	requireNothingReceived(t, bystander)
}

func TestBroadcastUserTopicReachesEveryUserSession(t *testing.T) {
	hub, reg := newTestHub(t)
	tab1 := attachSession(t, hub, reg, "tab1")
	tab2 := attachSession(t, hub, reg, "tab2")
	other := attachSession(t, hub, reg, "other")

	reg.RegisterUser("tab1", 42)
	reg.RegisterUser("tab2", 42)
	reg.RegisterUser("other", 99)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.UserTicketsTopic(42),
		Body:  map[string]any{"type": "TICKET_PURCHASED", "status": "confirmed"},
	})
	require.NoError(t, err)

	require.Equal(t, relay.UserTicketsTopic(42), receivedFrame(t, tab1).Topic)
	require.Equal(t, relay.UserTicketsTopic(42), receivedFrame(t, tab2).Topic)
	requireNothingReceived(t, other)
}

func TestBroadcastQualifiedTopicSharesBaseAudience(t *testing.T) {
	hub, reg := newTestHub(t)
	subscriber := attachSession(t, hub, reg, "s1")

	reg.SubscribeOrganization("s1", 7)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.OrganizationAnalyticsTopic(7),
		Body:  map[string]any{"type": "ANALYTICS_UPDATED"},
	})
	require.NoError(t, err)

	frame := receivedFrame(t, subscriber)
	require.Equal(t, relay.OrganizationAnalyticsTopic(7), frame.Topic)
}

func TestBroadcastEmptyAudienceIsNoError(t *testing.T) {
	hub, _ := newTestHub(t)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.EventTopic(404),
		Body:  map[string]any{},
	})
	require.NoError(t, err)
}

func TestBroadcastUnresolvableTopicFails(t *testing.T) {
	hub, _ := newTestHub(t)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: "venue:5",
		Body:  map[string]any{},
	})
	require.Error(t, err)
}

func TestBroadcastDropsFramesForSlowSession(t *testing.T) {
	hub, reg := newTestHub(t)
	slow := attachSession(t, hub, reg, "slow")

	ctx := context.Background()
	for i := 0; i < sendBuffer+10; i++ {
		err := hub.Broadcast(ctx, relay.OutboundPayload{
			Topic: relay.TopicAllEvents,
			Body:  map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	// the queue holds exactly its capacity; overflow was dropped, not blocked
	require.Len(t, slow.send, sendBuffer)
}

func TestDetachStopsDelivery(t *testing.T) {
	hub, reg := newTestHub(t)
	client := attachSession(t, hub, reg, "s1")
	reg.SubscribeEvent("s1", 5)

	hub.detach(client)

	err := hub.Broadcast(context.Background(), relay.OutboundPayload{
		Topic: relay.EventTopic(5),
		Body:  map[string]any{},
	})
	require.NoError(t, err)
	requireNothingReceived(t, client)
}

func TestControlFramesManageSubscriptions(t *testing.T) {
	hub, reg := newTestHub(t)
	client := attachSession(t, hub, reg, "s1")

	userID := int64(42)
	eventID := int64(5)
	campusID := int64(3)
	orgID := int64(7)

	client.handle(controlFrame{Type: "authenticate", UserID: &userID})
	client.handle(controlFrame{Type: "subscribe_event", EventID: &eventID})
	client.handle(controlFrame{Type: "subscribe_campus", CampusID: &campusID})
	client.handle(controlFrame{Type: "subscribe_organization", OrganizationID: &orgID})

	require.Equal(t, []string{"s1"}, reg.SessionsForUser(42))
	require.Equal(t, []string{"s1"}, reg.SessionsForEvent(5))
	require.Equal(t, []string{"s1"}, reg.SessionsForCampus(3))
	require.Equal(t, []string{"s1"}, reg.SessionsForOrganization(7))

	client.handle(controlFrame{Type: "unsubscribe_event", EventID: &eventID})
	require.Empty(t, reg.SessionsForEvent(5))

	// unknown or incomplete frames are ignored
	client.handle(controlFrame{Type: "subscribe_event"})
	client.handle(controlFrame{Type: "authenticate"})
	client.handle(controlFrame{Type: "dance"})
	require.Equal(t, []string{"s1"}, reg.SessionsForUser(42))
}

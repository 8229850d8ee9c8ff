package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"relay/internal/relay"
	"relay/internal/relay/metrics"
)

type stubReadModel struct {
	getEventFn func(ctx context.Context, eventID int64) (*relay.EventSnapshot, error)
	calls      int
}

func (s *stubReadModel) GetEventByID(ctx context.Context, eventID int64) (*relay.EventSnapshot, error) {
	s.calls++
	if s.getEventFn == nil {
		return nil, nil
	}
	return s.getEventFn(ctx, eventID)
}

func newTestRouter(t *testing.T, rm relay.ReadModel) *Router {
	t.Helper()
	r, err := NewRouter(rm, metrics.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return r
}

func scrapeMetrics(t *testing.T, registry *metrics.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}

func topicsOf(payloads []relay.OutboundPayload) []relay.Topic {
	out := make([]relay.Topic, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, p.Topic)
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func TestRouteEventCreatedFullFanout(t *testing.T) {
	snap := &relay.EventSnapshot{ID: 5, CampusID: 3, OrganizerID: 7, Title: "Career Fair"}
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		require.Equal(t, int64(5), id)
		return snap, nil
	}}
	r := newTestRouter(t, rm)

	payloads, err := r.Route(context.Background(), relay.EventCreated{
		EventID:     ptr(int64(5)),
		CampusID:    ptr(int64(3)),
		OrganizerID: ptr(int64(7)),
	})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.TopicAllEvents,
		relay.CampusTopic(3),
		relay.OrganizationTopic(7),
	}, topicsOf(payloads))

	for _, p := range payloads {
		body, ok := p.Body.(relay.EventChangeBody)
		require.True(t, ok)
		require.Equal(t, relay.KindEventCreated, body.Type)
		require.Equal(t, snap, body.Event)
	}
}

func TestRouteEventCreatedWithOnlyEventID(t *testing.T) {
	// creation does not resolve missing campus or organizer from the
	// snapshot; the feed topic is the only destination
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id, CampusID: 3, OrganizerID: 7}, nil
	}}
	r := newTestRouter(t, rm)

	payloads, err := r.Route(context.Background(), relay.EventCreated{EventID: ptr(int64(5))})
	require.NoError(t, err)

	require.Equal(t, []relay.Topic{relay.TopicAllEvents}, topicsOf(payloads))

	body := payloads[0].Body.(relay.EventChangeBody)
	require.NotNil(t, body.Event)
	require.Nil(t, body.CampusID)
	require.Nil(t, body.OrganizerID)
}

func TestRouteEventUpdatedResolvesIDsFromSnapshot(t *testing.T) {
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id, CampusID: 3, OrganizerID: 7}, nil
	}}
	r := newTestRouter(t, rm)

	payloads, err := r.Route(context.Background(), relay.EventUpdated{EventID: ptr(int64(5))})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.TopicAllEvents,
		relay.EventTopic(5),
		relay.CampusTopic(3),
		relay.OrganizationTopic(7),
	}, topicsOf(payloads))
}

func TestRouteEventUpdatedDegradesWhenLookupFails(t *testing.T) {
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return nil, errors.New("read model down")
	}}
	r := newTestRouter(t, rm)

	payloads, err := r.Route(context.Background(), relay.EventUpdated{
		EventID:  ptr(int64(5)),
		CampusID: ptr(int64(3)),
	})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.TopicAllEvents,
		relay.EventTopic(5),
		relay.CampusTopic(3),
	}, topicsOf(payloads))

	for _, p := range payloads {
		body := p.Body.(relay.EventChangeBody)
		require.Nil(t, body.Event)
		require.Equal(t, int64(5), *body.EventID)
	}
}

func TestRouteEventDeletedSkipsEnrichment(t *testing.T) {
	rm := &stubReadModel{}
	r := newTestRouter(t, rm)

	payloads, err := r.Route(context.Background(), relay.EventDeleted{
		EventID:     ptr(int64(5)),
		CampusID:    ptr(int64(3)),
		OrganizerID: ptr(int64(7)),
	})
	require.NoError(t, err)
	require.Zero(t, rm.calls)

	require.ElementsMatch(t, []relay.Topic{
		relay.TopicAllEvents,
		relay.EventTopic(5),
		relay.CampusTopic(3),
		relay.OrganizationTopic(7),
	}, topicsOf(payloads))

	for _, p := range payloads {
		body := p.Body.(relay.EventChangeBody)
		require.Nil(t, body.Event)
		require.Equal(t, relay.KindEventDeleted, body.Type)
	}
}

func TestRouteTicketPurchasedPrivacyBoundary(t *testing.T) {
	r := newTestRouter(t, &stubReadModel{})

	payloads, err := r.Route(context.Background(), relay.TicketPurchased{
		EventID:           ptr(int64(5)),
		UserID:            ptr(int64(42)),
		CampusID:          ptr(int64(3)),
		TicketType:        ptr("VIP"),
		TicketsSold:       ptr(int64(11)),
		RemainingCapacity: ptr(int64(89)),
	})
	require.NoError(t, err)
	require.Len(t, payloads, 4)

	byTopic := make(map[relay.Topic]any, len(payloads))
	for _, p := range payloads {
		byTopic[p.Topic] = p.Body
	}

	confirmation, ok := byTopic[relay.UserTicketsTopic(42)].(relay.TicketConfirmationBody)
	require.True(t, ok)
	require.Equal(t, relay.KindTicketPurchased, confirmation.Type)
	require.Equal(t, int64(5), *confirmation.EventID)
	require.Equal(t, "VIP", *confirmation.TicketType)
	require.Equal(t, "confirmed", confirmation.Status)

	for _, topic := range []relay.Topic{relay.EventTopic(5), relay.TopicAllEvents, relay.CampusTopic(3)} {
		capacity, ok := byTopic[topic].(relay.CapacityBody)
		require.True(t, ok, "topic %s", topic)
		require.Equal(t, relay.KindCapacityUpdated, capacity.Type)
		require.Equal(t, int64(5), capacity.EventID)
		require.Equal(t, int64(11), *capacity.TicketsSold)
		require.Equal(t, int64(89), *capacity.AvailableCapacity)
	}
}

func TestRouteTicketPurchasedWithoutUserSkipsConfirmation(t *testing.T) {
	r := newTestRouter(t, &stubReadModel{})

	payloads, err := r.Route(context.Background(), relay.TicketPurchased{
		EventID:     ptr(int64(5)),
		TicketsSold: ptr(int64(11)),
	})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.EventTopic(5),
		relay.TopicAllEvents,
	}, topicsOf(payloads))
}

func TestRouteOrganizationUpdated(t *testing.T) {
	r := newTestRouter(t, &stubReadModel{})

	payloads, err := r.Route(context.Background(), relay.OrganizationUpdated{OrganizationID: ptr(int64(7))})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.TopicAllEvents,
		relay.OrganizationTopic(7),
	}, topicsOf(payloads))

	payloads, err = r.Route(context.Background(), relay.OrganizationUpdated{})
	require.NoError(t, err)
	require.Empty(t, payloads)
}

func TestRouteAnalyticsUpdated(t *testing.T) {
	r := newTestRouter(t, &stubReadModel{})

	payloads, err := r.Route(context.Background(), relay.AnalyticsUpdated{
		OrganizerID: ptr(int64(7)),
		EventID:     ptr(int64(5)),
	})
	require.NoError(t, err)

	require.ElementsMatch(t, []relay.Topic{
		relay.OrganizationTopic(7),
		relay.OrganizationAnalyticsTopic(7),
		relay.EventAnalyticsTopic(5),
	}, topicsOf(payloads))
}

func TestRouteCountsEnrichmentOutcomes(t *testing.T) {
	registry := metrics.NewRegistry()
	calls := 0
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		calls++
		switch calls {
		case 1:
			return &relay.EventSnapshot{ID: id}, nil
		case 2:
			return nil, nil
		default:
			return nil, errors.New("read model down")
		}
	}}
	r, err := NewRouter(rm, registry, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := r.Route(context.Background(), relay.EventUpdated{EventID: ptr(int64(5))})
		require.NoError(t, err)
	}

	body := scrapeMetrics(t, registry)
	require.Contains(t, body, `relay_enrichment_total{outcome="hit"} 1`)
	require.Contains(t, body, `relay_enrichment_total{outcome="absent"} 1`)
	require.Contains(t, body, `relay_enrichment_total{outcome="error"} 1`)
}

func TestRouteUnrecognizedReturnsNothing(t *testing.T) {
	r := newTestRouter(t, &stubReadModel{})

	payloads, err := r.Route(context.Background(), relay.Unrecognized{Type: "VENUE_RELOCATED"})
	require.NoError(t, err)
	require.Empty(t, payloads)
}

func TestRouteIsDeterministic(t *testing.T) {
	rm := &stubReadModel{getEventFn: func(ctx context.Context, id int64) (*relay.EventSnapshot, error) {
		return &relay.EventSnapshot{ID: id, CampusID: 3, OrganizerID: 7}, nil
	}}
	r := newTestRouter(t, rm)

	n := relay.EventUpdated{EventID: ptr(int64(5))}
	first, err := r.Route(context.Background(), n)
	require.NoError(t, err)
	second, err := r.Route(context.Background(), n)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

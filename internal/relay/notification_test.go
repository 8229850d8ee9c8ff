package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEventCreated(t *testing.T) {
	n, err := Decode([]byte(`{"type":"EVENT_CREATED","eventId":5,"campusId":3,"organizerId":7}`))
	require.NoError(t, err)

	created, ok := n.(EventCreated)
	require.True(t, ok)
	require.NotNil(t, created.EventID)
	require.Equal(t, int64(5), *created.EventID)
	require.NotNil(t, created.CampusID)
	require.Equal(t, int64(3), *created.CampusID)
	require.NotNil(t, created.OrganizerID)
	require.Equal(t, int64(7), *created.OrganizerID)
}

func TestDecodeOmittedFieldsAreAbsent(t *testing.T) {
	n, err := Decode([]byte(`{"type":"EVENT_UPDATED","eventId":9}`))
	require.NoError(t, err)

	updated, ok := n.(EventUpdated)
	require.True(t, ok)
	require.NotNil(t, updated.EventID)
	require.Nil(t, updated.CampusID)
	require.Nil(t, updated.OrganizerID)
}

func TestDecodeCoercesIDRepresentations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *int64
	}{
		{name: "integer", body: `{"type":"EVENT_CREATED","eventId":12}`, want: ptr(int64(12))},
		{name: "integral float", body: `{"type":"EVENT_CREATED","eventId":12.0}`, want: ptr(int64(12))},
		{name: "numeric string", body: `{"type":"EVENT_CREATED","eventId":"12"}`, want: ptr(int64(12))},
		{name: "fractional float", body: `{"type":"EVENT_CREATED","eventId":12.5}`, want: nil},
		{name: "non-numeric string", body: `{"type":"EVENT_CREATED","eventId":"abc"}`, want: nil},
		{name: "null", body: `{"type":"EVENT_CREATED","eventId":null}`, want: nil},
		{name: "object", body: `{"type":"EVENT_CREATED","eventId":{"id":12}}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Decode([]byte(tt.body))
			require.NoError(t, err)

			created, ok := n.(EventCreated)
			require.True(t, ok)
			if tt.want == nil {
				require.Nil(t, created.EventID)
				return
			}
			require.NotNil(t, created.EventID)
			require.Equal(t, *tt.want, *created.EventID)
		})
	}
}

func TestDecodeTicketPurchased(t *testing.T) {
	body := `{"type":"TICKET_PURCHASED","eventId":5,"userId":42,"campusId":3,"ticketType":"VIP","ticketsSold":11,"remainingCapacity":89}`

	n, err := Decode([]byte(body))
	require.NoError(t, err)

	tp, ok := n.(TicketPurchased)
	require.True(t, ok)
	require.Equal(t, int64(5), *tp.EventID)
	require.Equal(t, int64(42), *tp.UserID)
	require.Equal(t, int64(3), *tp.CampusID)
	require.Equal(t, "VIP", *tp.TicketType)
	require.Equal(t, int64(11), *tp.TicketsSold)
	require.Equal(t, int64(89), *tp.RemainingCapacity)
}

func TestDecodeOrganizationUpdatedAcceptsBothIDSpellings(t *testing.T) {
	n, err := Decode([]byte(`{"type":"ORGANIZATION_UPDATED","organizationId":4}`))
	require.NoError(t, err)
	org := n.(OrganizationUpdated)
	require.Equal(t, int64(4), *org.OrganizationID)

	n, err = Decode([]byte(`{"type":"ORGANIZATION_UPDATED","organizerId":4}`))
	require.NoError(t, err)
	org = n.(OrganizationUpdated)
	require.Equal(t, int64(4), *org.OrganizationID)
}

func TestDecodeUnknownTypeIsUnrecognized(t *testing.T) {
	n, err := Decode([]byte(`{"type":"VENUE_RELOCATED","venueId":9}`))
	require.NoError(t, err)

	u, ok := n.(Unrecognized)
	require.True(t, ok)
	require.Equal(t, "VENUE_RELOCATED", u.Type)
	require.Equal(t, Kind("VENUE_RELOCATED"), u.Kind())
}

func TestDecodeMissingType(t *testing.T) {
	_, err := Decode([]byte(`{"eventId":5}`))
	require.ErrorIs(t, err, ErrMissingKind)

	_, err = Decode([]byte(`{"type":"  ","eventId":5}`))
	require.ErrorIs(t, err, ErrMissingKind)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"type":"EVENT_CREATED"`))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrMissingKind)
}

func TestEncodeDecodeTicketPurchased(t *testing.T) {
	original := TicketPurchased{
		EventID:           ptr(int64(5)),
		UserID:            ptr(int64(42)),
		CampusID:          ptr(int64(3)),
		TicketType:        ptr("VIP"),
		TicketsSold:       ptr(int64(11)),
		RemainingCapacity: ptr(int64(89)),
	}

	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestEncodeRejectsUnrecognized(t *testing.T) {
	_, err := Encode(Unrecognized{Type: "WHO_KNOWS"})
	require.Error(t, err)
}

func ptr[T any](v T) *T {
	return &v
}

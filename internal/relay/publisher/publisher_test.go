package publisher

import (
	"context"
	"testing"

	"github.com/couchbase/gocb/v2"
	"github.com/stretchr/testify/require"

	"relay/internal/relay"
)

type fakeChannel struct {
	appended  []relay.Record
	taken     map[uint64]struct{}
	next      uint64
	nextErr   error
	appendErr error
	committed []uint64
}

func (f *fakeChannel) Append(ctx context.Context, rec relay.Record) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	if _, dup := f.taken[rec.Offset]; dup {
		return gocb.ErrDocumentExists
	}
	if f.taken == nil {
		f.taken = make(map[uint64]struct{})
	}
	f.taken[rec.Offset] = struct{}{}
	f.appended = append(f.appended, rec)
	return nil
}

func (f *fakeChannel) Load(ctx context.Context, fromOffset uint64, limit int) ([]relay.Record, error) {
	return nil, nil
}

func (f *fakeChannel) NextOffset(ctx context.Context) (uint64, error) {
	if f.nextErr != nil {
		return 0, f.nextErr
	}
	return f.next, nil
}

func (f *fakeChannel) CommitOffset(offset uint64) error {
	f.committed = append(f.committed, offset)
	return nil
}

func (f *fakeChannel) GetCursor(ctx context.Context, sub string) (uint64, error) {
	return 0, nil
}

func (f *fakeChannel) CommitCursor(sub string, offset uint64) error {
	return nil
}

func (f *fakeChannel) Acquire(ctx context.Context, sub, recordID string, offset uint64) error {
	return nil
}

func (f *fakeChannel) Release(ctx context.Context, sub, recordID string) error {
	return nil
}

func TestPublishAppendsAndAdvancesOffset(t *testing.T) {
	ch := &fakeChannel{next: 7}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)

	eventID := int64(5)
	receipt, err := p.Publish(context.Background(), relay.EventCreated{EventID: &eventID})
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, uint64(7), receipt.Offset)
	require.Equal(t, relay.RecordKey("notifications", 7), receipt.RecordID)

	require.Len(t, ch.appended, 1)
	rec := ch.appended[0]
	require.Equal(t, "notifications", rec.Channel)
	require.Equal(t, uint64(7), rec.Offset)
	require.NotNil(t, rec.PublishTime)

	decoded, err := relay.Decode(rec.Body)
	require.NoError(t, err)
	created, ok := decoded.(relay.EventCreated)
	require.True(t, ok)
	require.Equal(t, int64(5), *created.EventID)

	require.Equal(t, []uint64{8}, ch.committed)
}

func TestPublishStartsAtZeroOnEmptyChannel(t *testing.T) {
	ch := &fakeChannel{nextErr: gocb.ErrDocumentNotFound}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)

	eventID := int64(5)
	receipt, err := p.Publish(context.Background(), relay.EventCreated{EventID: &eventID})
	require.NoError(t, err)
	require.Equal(t, uint64(0), receipt.Offset)
	require.Equal(t, []uint64{1}, ch.committed)
}

func TestPublishRetriesPastClaimedSlot(t *testing.T) {
	// another publisher already appended at offset 3 but has not yet
	// committed the shared offset; losing the slot must not lose the
	// notification
	ch := &fakeChannel{next: 3, taken: map[uint64]struct{}{3: {}}}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)

	eventID := int64(5)
	receipt, err := p.Publish(context.Background(), relay.EventCreated{EventID: &eventID})
	require.NoError(t, err)
	require.Equal(t, uint64(4), receipt.Offset)
	require.Equal(t, relay.RecordKey("notifications", 4), receipt.RecordID)

	require.Len(t, ch.appended, 1)
	require.Equal(t, uint64(4), ch.appended[0].Offset)

	decoded, err := relay.Decode(ch.appended[0].Body)
	require.NoError(t, err)
	created, ok := decoded.(relay.EventCreated)
	require.True(t, ok)
	require.Equal(t, int64(5), *created.EventID)

	require.Equal(t, []uint64{5}, ch.committed)
}

func TestPublishGivesUpWhenSlotsStayClaimed(t *testing.T) {
	ch := &fakeChannel{next: 3, appendErr: gocb.ErrDocumentExists}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)

	eventID := int64(5)
	_, err = p.Publish(context.Background(), relay.EventCreated{EventID: &eventID})
	require.Error(t, err)
	require.Empty(t, ch.committed)
}

func TestPublishRejectsUnencodableNotification(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)

	_, err = p.Publish(context.Background(), relay.Unrecognized{Type: "NOPE"})
	require.Error(t, err)
	require.Empty(t, ch.appended)
}

func TestDisabledPublisherReportsAbsentReceipt(t *testing.T) {
	receipt, err := Disabled{}.Publish(context.Background(), relay.EventCreated{})
	require.NoError(t, err)
	require.Nil(t, receipt)
}

func TestTypedPublisherBuildsWireNotifications(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "notifications")
	require.NoError(t, err)
	typed := NewTyped(p)

	ctx := context.Background()
	campusID := int64(3)

	_, err = typed.TicketPurchased(ctx, 5, 42, &campusID, "VIP", 11, 89)
	require.NoError(t, err)

	require.Len(t, ch.appended, 1)
	decoded, err := relay.Decode(ch.appended[0].Body)
	require.NoError(t, err)

	tp, ok := decoded.(relay.TicketPurchased)
	require.True(t, ok)
	require.Equal(t, int64(5), *tp.EventID)
	require.Equal(t, int64(42), *tp.UserID)
	require.Equal(t, int64(3), *tp.CampusID)
	require.Equal(t, "VIP", *tp.TicketType)
	require.Equal(t, int64(11), *tp.TicketsSold)
	require.Equal(t, int64(89), *tp.RemainingCapacity)
}

func TestNewPublisherValidatesDeps(t *testing.T) {
	_, err := NewPublisher(nil, "notifications")
	require.Error(t, err)

	_, err = NewPublisher(&fakeChannel{}, "")
	require.Error(t, err)
}

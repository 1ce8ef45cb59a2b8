package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	marketdomain "bazaar/internal/service/market/domain"
	"bazaar/internal/service/notification/domain"
)

type fakeInbox struct {
	appended []*domain.Notification
	read     []string
	failNext bool
}

func (f *fakeInbox) Append(ctx context.Context, n *domain.Notification) error {
	if f.failNext {
		f.failNext = false
		return errors.New("redis down")
	}
	f.appended = append(f.appended, n)
	return nil
}

func (f *fakeInbox) List(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	if limit < len(f.appended) {
		return f.appended[:limit], nil
	}
	return f.appended, nil
}

func (f *fakeInbox) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	f.read = append(f.read, notificationID)
	return nil
}

type fakeFeed struct {
	published []*domain.Notification
	fail      bool
}

func (f *fakeFeed) Publish(ctx context.Context, n *domain.Notification) error {
	if f.fail {
		return errors.New("pubsub down")
	}
	f.published = append(f.published, n)
	return nil
}

func sampleEvent() *marketdomain.NotificationEvent {
	return &marketdomain.NotificationEvent{
		EventID:     "evt-1",
		RecipientID: "user-42",
		Kind:        marketdomain.NotificationPurchaseConfirmed,
		Message:     "your offer was accepted",
		OccurredAt:  time.Now(),
	}
}

func TestHandleEvent(t *testing.T) {
	t.Parallel()

	inbox := &fakeInbox{}
	feed := &fakeFeed{}
	svc := NewNotificationApplicationService(inbox, feed, otel.Tracer("test"))
	ctx := context.Background()

	require.NoError(t, svc.HandleEvent(ctx, sampleEvent()))
	require.Len(t, inbox.appended, 1)
	require.Len(t, feed.published, 1)

	n := inbox.appended[0]
	assert.Equal(t, "evt-1", n.ID)
	assert.Equal(t, "user-42", n.RecipientID)
	assert.False(t, n.Read)
}

func TestHandleEventInboxFailurePropagates(t *testing.T) {
	t.Parallel()

	inbox := &fakeInbox{failNext: true}
	svc := NewNotificationApplicationService(inbox, &fakeFeed{}, otel.Tracer("test"))

	// 收件箱写入失败必须返回错误，消费者不提交 offset，等待重投
	assert.Error(t, svc.HandleEvent(context.Background(), sampleEvent()))
	assert.Empty(t, inbox.appended)
}

func TestHandleEventFeedFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	inbox := &fakeInbox{}
	svc := NewNotificationApplicationService(inbox, &fakeFeed{fail: true}, otel.Tracer("test"))

	// 实时推送只是加速通道，失败不得影响收件箱落库
	assert.NoError(t, svc.HandleEvent(context.Background(), sampleEvent()))
	assert.Len(t, inbox.appended, 1)
}

func TestHandleEventFillsMissingTimestamp(t *testing.T) {
	t.Parallel()

	inbox := &fakeInbox{}
	svc := NewNotificationApplicationService(inbox, &fakeFeed{}, otel.Tracer("test"))

	event := sampleEvent()
	event.OccurredAt = time.Time{}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.False(t, inbox.appended[0].CreatedAt.IsZero())
}

func TestListInboxClampsLimit(t *testing.T) {
	t.Parallel()

	inbox := &fakeInbox{}
	for i := 0; i < 60; i++ {
		inbox.appended = append(inbox.appended, &domain.Notification{})
	}
	svc := NewNotificationApplicationService(inbox, &fakeFeed{}, otel.Tracer("test"))

	got, err := svc.ListInbox(context.Background(), "user-42", 0)
	require.NoError(t, err)
	assert.Len(t, got, 50)

	got, err = svc.ListInbox(context.Background(), "user-42", 10)
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

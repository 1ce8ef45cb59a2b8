// internal/service/notification/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/pkg/logger"
	marketdomain "bazaar/internal/service/market/domain"
	"bazaar/internal/service/notification/domain"
)

// NotificationApplicationService 把市场核心发出的事件物化为收件箱记录，
// 并把同一条记录推到实时订阅通道。
type NotificationApplicationService struct {
	inbox  domain.InboxRepository
	feed   domain.FeedPublisher
	tracer trace.Tracer
}

func NewNotificationApplicationService(inbox domain.InboxRepository, feed domain.FeedPublisher, tracer trace.Tracer) *NotificationApplicationService {
	return &NotificationApplicationService{inbox: inbox, feed: feed, tracer: tracer}
}

// HandleEvent 是消费侧的业务入口，由 Kafka 消费者适配器驱动。
// 收件箱写入失败返回错误（消息不提交，依赖重投保证 at-least-once）；
// 实时推送失败只记日志。
func (s *NotificationApplicationService) HandleEvent(ctx context.Context, event *marketdomain.NotificationEvent) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleNotificationEvent", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	n := &domain.Notification{
		ID:          event.EventID,
		RecipientID: event.RecipientID,
		Kind:        string(event.Kind),
		ListingID:   event.ListingID,
		OfferID:     event.OfferID,
		Message:     event.Message,
		Read:        false,
		CreatedAt:   event.OccurredAt,
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if err := s.inbox.Append(ctx, n); err != nil {
		span.RecordError(err)
		return fmt.Errorf("append to inbox: %w", err)
	}

	if err := s.feed.Publish(ctx, n); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("recipient", n.RecipientID).Msg("failed to publish to realtime feed")
	}
	return nil
}

// ListInbox 返回用户最近的通知。
func (s *NotificationApplicationService) ListInbox(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.inbox.List(ctx, recipientID, limit)
}

// MarkRead 标记一条通知为已读。
func (s *NotificationApplicationService) MarkRead(ctx context.Context, recipientID, notificationID string) error {
	return s.inbox.MarkRead(ctx, recipientID, notificationID)
}

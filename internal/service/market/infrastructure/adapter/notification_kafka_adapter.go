// internal/service/market/infrastructure/adapter/notification_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	"bazaar/internal/pkg/mq"
	"bazaar/internal/service/market/domain"
)

var notificationsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bazaar_notifications_emitted_total",
	Help: "Notification events published to the message bus, partitioned by kind.",
}, []string{"kind"})

// NotificationKafkaAdapter 是 port.NotificationProducer 的 Kafka 实现。
// 事件按接收者 ID 作为分区键写入 notifications topic，
// 追踪上下文由 mq.ProduceMessage 自动注入消息头。
type NotificationKafkaAdapter struct {
	writer *kafka.Writer
}

func NewNotificationKafkaAdapter(writer *kafka.Writer) *NotificationKafkaAdapter {
	return &NotificationKafkaAdapter{writer: writer}
}

func (a *NotificationKafkaAdapter) SendOfferReceived(ctx context.Context, offer *domain.Offer) error {
	event := domain.NotificationEvent{
		EventID:     uuid.NewString(),
		RecipientID: offer.SellerID.String(),
		Kind:        domain.NotificationOfferReceived,
		OfferID:     offer.ID.String(),
		Message:     "You received a new offer on your listing.",
		OccurredAt:  time.Now(),
	}
	if offer.ListingID.Valid {
		event.ListingID = offer.ListingID.UUID.String()
	}
	return a.produce(ctx, event)
}

func (a *NotificationKafkaAdapter) SendPurchaseConfirmed(ctx context.Context, offer *domain.Offer) error {
	event := domain.NotificationEvent{
		EventID:     uuid.NewString(),
		RecipientID: offer.BuyerID.String(),
		Kind:        domain.NotificationPurchaseConfirmed,
		OfferID:     offer.ID.String(),
		Message:     "Congratulations! The seller accepted your offer.",
		OccurredAt:  time.Now(),
	}
	if offer.ListingID.Valid {
		event.ListingID = offer.ListingID.UUID.String()
	}
	return a.produce(ctx, event)
}

func (a *NotificationKafkaAdapter) SendItemSold(ctx context.Context, recipientID, listingID uuid.UUID) error {
	event := domain.NotificationEvent{
		EventID:     uuid.NewString(),
		RecipientID: recipientID.String(),
		Kind:        domain.NotificationItemSold,
		ListingID:   listingID.String(),
		Message:     "The item you made an offer on has been sold to another buyer.",
		OccurredAt:  time.Now(),
	}
	return a.produce(ctx, event)
}

func (a *NotificationKafkaAdapter) produce(ctx context.Context, event domain.NotificationEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification event: %w", err)
	}
	if err := mq.ProduceMessage(ctx, a.writer, []byte(event.RecipientID), eventBytes); err != nil {
		return err
	}
	notificationsEmitted.WithLabelValues(string(event.Kind)).Inc()
	return nil
}

// Close 关闭底层的 Kafka writer。
func (a *NotificationKafkaAdapter) Close() error {
	return a.writer.Close()
}

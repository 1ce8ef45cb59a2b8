// internal/service/market/domain/event.go
package domain

import "time"

// NotificationKind 枚举了核心流程会产生的用户可见事件。
type NotificationKind string

const (
	// NotificationOfferReceived 买家出价后通知卖家
	NotificationOfferReceived NotificationKind = "offer_received"
	// NotificationPurchaseConfirmed 成交后通知胜出的买家
	NotificationPurchaseConfirmed NotificationKind = "purchase_confirmed"
	// NotificationItemSold 成交后通知被作废报价的其他买家
	NotificationItemSold NotificationKind = "item_sold"
)

// NotificationEvent 是投递到消息总线上的事件载体。
// 投递语义是 at-least-once：丢失只影响体验，不影响交易正确性，
// 所以事件的发送永远不会阻塞或回滚成交协议。
type NotificationEvent struct {
	EventID     string           `json:"eventId"`
	RecipientID string           `json:"recipientId"`
	Kind        NotificationKind `json:"kind"`
	ListingID   string           `json:"listingId,omitempty"`
	OfferID     string           `json:"offerId,omitempty"`
	Message     string           `json:"message"`
	OccurredAt  time.Time        `json:"occurredAt"`
}

// internal/service/market/domain/port/notifier.go
package port

import (
	"context"

	"github.com/google/uuid"

	"bazaar/internal/service/market/domain"
)

// NotificationProducer 是通知事件的出站端口，由基础设施层实现。
// 所有方法都是 fire-and-forget 语义：调用方只记录失败，绝不因此回滚交易。
type NotificationProducer interface {
	// SendOfferReceived 买家出价后通知卖家。
	SendOfferReceived(ctx context.Context, offer *domain.Offer) error

	// SendPurchaseConfirmed 成交后通知胜出买家。
	SendPurchaseConfirmed(ctx context.Context, offer *domain.Offer) error

	// SendItemSold 通知一个被作废报价的买家：商品已售予他人。
	SendItemSold(ctx context.Context, recipientID, listingID uuid.UUID) error
}

// internal/service/market/application/saga/notification.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"bazaar/internal/pkg/logger"
)

// NotificationHandler 是协议的最后一步：把成交结果通知到所有相关买家。
// 胜出买家收到 purchase_confirmed，每个被作废报价的买家收到 item_sold。
// 发送失败只记日志，交易在第 2 步就已经落定，这里没有任何回滚路径。
type NotificationHandler struct {
	NextHandler
}

func (h *NotificationHandler) Handle(fctx *FinalizeContext) error {
	detached := context.WithoutCancel(fctx.Ctx)

	ctx, span := fctx.Tracer.Start(detached, "saga.Notification")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.topic", "notifications"),
	)

	if err := fctx.Notifier.SendPurchaseConfirmed(ctx, fctx.ChosenOffer); err != nil {
		span.RecordError(err)
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("offer", fctx.ChosenOffer.ID.String()).
			Msg("failed to publish purchase_confirmed notification")
	}

	for _, buyerID := range fctx.CancelledBuyers() {
		if err := fctx.Notifier.SendItemSold(ctx, buyerID, fctx.Listing.ID); err != nil {
			span.RecordError(err)
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("recipient", buyerID.String()).
				Msg("failed to publish item_sold notification")
		}
	}

	span.AddEvent("finalization notifications emitted (or attempted)")

	return h.executeNext(fctx)
}

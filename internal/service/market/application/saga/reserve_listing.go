// internal/service/market/application/saga/reserve_listing.go
package saga

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/service/market/domain"
)

// ReserveListingHandler 是协议的第 1 步：抢占商品的唯一"在售"席位。
// LISTED -> SOLD 的 compare-and-swap 就是整个协议的线性化点，
// 并发的成交请求中只有赢下这次 CAS 的那个被允许继续。
type ReserveListingHandler struct {
	NextHandler
}

func (h *ReserveListingHandler) Handle(fctx *FinalizeContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.ReserveListing")
	defer span.End()

	span.SetAttributes(attribute.String("listing.id", fctx.Listing.ID.String()))

	ok, err := fctx.Listings.TryTransition(ctx, fctx.Listing.ID, domain.AvailabilityListed, domain.AvailabilitySold)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "listing reservation failed on storage")
		// 第 1 步尚未产生任何副作用，直接把可重试的存储错误交还调用方
		return fmt.Errorf("reserve listing: %w", err)
	}
	if !ok {
		// 另一个成交请求已经赢得这次竞争，或商品已被独立下架
		span.AddEvent("listing CAS lost, already finalized")
		return domain.ErrAlreadyFinalized
	}

	span.AddEvent("listing reserved (LISTED -> SOLD)")

	// 唯一的补偿动作：提交报价失败时把商品席位还回去。
	// 补偿失败意味着商品卡在 SOLD 且没有已完成的报价，需要告警人工介入。
	fctx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := fctx.Tracer.Start(compCtx, "saga.compensation.ReleaseListing")
		defer compSpan.End()

		rolled, rbErr := fctx.Listings.TryTransition(compCtx, fctx.Listing.ID, domain.AvailabilitySold, domain.AvailabilityListed)
		if rbErr != nil || !rolled {
			compSpan.RecordError(rbErr)
			logger.Ctx(compCtx).Error().
				Err(rbErr).
				Bool("applied", rolled).
				Str("listing", fctx.Listing.ID.String()).
				Msg("CRITICAL: failed to roll listing back to LISTED")
		}
	})

	return h.executeNext(fctx)
}

// internal/service/market/application/saga/void_competitors.go
package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/service/market/domain"
)

// VoidCompetitorsHandler 是协议的第 3 步：作废同一商品下其余的 PENDING 报价。
// 这一步允许最终一致：每条作废都是独立且幂等安全的 CAS，失败的残留
// 交给对账清扫兜底，绝不阻塞卖家看到的成交结果。
type VoidCompetitorsHandler struct {
	NextHandler
}

func (h *VoidCompetitorsHandler) Handle(fctx *FinalizeContext) error {
	// 成交在第 2 步已经落定，作废动作不随调用方的取消/超时而中断
	detached := context.WithoutCancel(fctx.Ctx)

	ctx, span := fctx.Tracer.Start(detached, "saga.VoidCompetitors")
	defer span.End()

	offers, err := h.snapshotWithRetry(ctx, fctx)
	if err != nil {
		// 读不到快照也不能让已经落定的交易失败，残留报价留给清扫任务
		span.RecordError(err)
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("listing", fctx.Listing.ID.String()).
			Msg("competitor snapshot unavailable, leaving residue for reconciliation sweep")
		return h.executeNext(fctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	voided := 0
	for _, offer := range offers {
		if offer.ID == fctx.ChosenOffer.ID || offer.Status != domain.OfferPending {
			continue
		}
		voided++
		offer := offer
		g.Go(func() error {
			ok, terr := fctx.Offers.TryTransition(gctx, offer.ID, domain.OfferPending, domain.OfferCancelled)
			if terr != nil {
				// 单条作废失败同样交给清扫任务，不传播
				logger.Ctx(gctx).Warn().
					Err(terr).
					Str("offer", offer.ID.String()).
					Msg("failed to void competing offer")
				return nil
			}
			if !ok {
				// 报价在快照之后自己动过（已被作废或并发清扫处理过），跳过即可
				return nil
			}
			fctx.addCancelledBuyer(offer.BuyerID)
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("offers.snapshot", len(offers)),
		attribute.Int("offers.voided", len(fctx.CancelledBuyers())),
		attribute.Int("offers.attempted", voided),
	)

	return h.executeNext(fctx)
}

// snapshotWithRetry 以指数退避重试快照读，次数有界。
// 快照读失败几乎总是瞬时的存储抖动，值得自动重试；
// 与第 1/2 步不同，那两步的失败是有语义的，从不自动重试。
func (h *VoidCompetitorsHandler) snapshotWithRetry(ctx context.Context, fctx *FinalizeContext) ([]*domain.Offer, error) {
	attempts := fctx.VoidMaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := fctx.VoidBaseDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}
		offers, err := fctx.Offers.ListByListing(ctx, fctx.Listing.ID)
		if err == nil {
			return offers, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

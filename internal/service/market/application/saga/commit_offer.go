// internal/service/market/application/saga/commit_offer.go
package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"bazaar/internal/service/market/domain"
)

// CommitOfferHandler 是协议的第 2 步：把被选中的报价置为 COMPLETED。
// 第 1 步已经挡住了并发的成交请求，这一步的 CAS 正常情况下必然成功；
// 失败只可能来自外部篡改或存储故障，此时执行协议中唯一的补偿动作
// （商品回滚到 LISTED），因为步骤 1 和 2 在底层存储上不是一个原子单元。
type CommitOfferHandler struct {
	NextHandler
}

func (h *CommitOfferHandler) Handle(fctx *FinalizeContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.CommitOffer")
	defer span.End()

	span.SetAttributes(attribute.String("offer.id", fctx.ChosenOffer.ID.String()))

	ok, err := fctx.Offers.TryTransition(ctx, fctx.ChosenOffer.ID, domain.OfferPending, domain.OfferCompleted)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "offer commit failed on storage")
		fctx.TriggerCompensation(ctx)
		return fmt.Errorf("commit offer: %w", err)
	}
	if !ok {
		span.AddEvent("offer CAS lost despite listing fence")
		span.SetStatus(codes.Error, "chosen offer no longer pending")
		fctx.TriggerCompensation(ctx)
		return domain.ErrOfferInvalid
	}

	span.AddEvent("offer committed (PENDING -> COMPLETED), sale is final")

	// 从这里开始交易已不可逆：后续步骤只许尽力收敛，不许失败回传
	return h.executeNext(fctx)
}

// internal/service/market/application/service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bazaar/internal/pkg/logger"
	"bazaar/internal/service/market/application/saga"
	"bazaar/internal/service/market/domain"
	"bazaar/internal/service/market/domain/port"
)

// Options 控制成交协议的超时与重试行为。
type Options struct {
	// FinalizeTimeout 覆盖整个协议的总超时。注意：超时只在第 1 步
	// 提交之前有意义，商品席位一旦抢占成功，协议总会推进到尽力而为的收尾。
	FinalizeTimeout time.Duration
	// VoidMaxAttempts / VoidBaseDelay 是第 3 步快照读的退避重试参数。
	VoidMaxAttempts int
	VoidBaseDelay   time.Duration
}

// MarketApplicationService 编排市场核心的所有业务流程：
// 报价创建、成交协议、评价准入和残留报价对账。
type MarketApplicationService struct {
	listings domain.ListingRepository
	offers   domain.OfferRepository
	ratings  domain.RatingRepository
	notifier port.NotificationProducer
	tracer   trace.Tracer
	opts     Options
}

func NewMarketApplicationService(
	listings domain.ListingRepository,
	offers domain.OfferRepository,
	ratings domain.RatingRepository,
	notifier port.NotificationProducer,
	tracer trace.Tracer,
	opts Options,
) *MarketApplicationService {
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = 5 * time.Second
	}
	if opts.VoidMaxAttempts <= 0 {
		opts.VoidMaxAttempts = 5
	}
	if opts.VoidBaseDelay <= 0 {
		opts.VoidBaseDelay = 100 * time.Millisecond
	}
	return &MarketApplicationService{
		listings: listings,
		offers:   offers,
		ratings:  ratings,
		notifier: notifier,
		tracer:   tracer,
		opts:     opts,
	}
}

// CreateOffer 为 LISTED 状态的商品创建一条 PENDING 报价，
// 并向卖家发出 offer_received 通知（尽力而为）。
func (s *MarketApplicationService) CreateOffer(ctx context.Context, listingID, buyerID uuid.UUID, kind domain.OfferKind, amount float64) (*domain.Offer, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOffer")
	defer span.End()

	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if listing == nil {
		return nil, domain.ErrListingNotFound
	}

	offer, err := domain.NewOffer(listing, buyerID, kind, amount)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.offers.Create(ctx, offer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist offer")
		return nil, fmt.Errorf("create offer: %w", err)
	}

	if err := s.notifier.SendOfferReceived(ctx, offer); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("offer", offer.ID.String()).Msg("failed to publish offer_received notification")
	}

	return offer, nil
}

// ListOffers 返回商品下全部报价的快照读，供卖家的"感兴趣的买家"视图使用。
func (s *MarketApplicationService) ListOffers(ctx context.Context, listingID uuid.UUID) ([]*domain.Offer, error) {
	ctx, span := s.tracer.Start(ctx, "app.ListOffers")
	defer span.End()
	return s.offers.ListByListing(ctx, listingID)
}

// Finalize 执行成交协议：卖家接受一条报价，商品售出，其余报价作废。
// 返回的错误即协议结果：nil 成功，ErrAlreadyFinalized / ErrNotAuthorized /
// ErrOfferInvalid 是语义性冲突，其余是可重试的存储故障。
func (s *MarketApplicationService) Finalize(ctx context.Context, listingID, offerID, sellerID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "app.Finalize")
	defer span.End()

	span.SetAttributes(
		attribute.String("listing.id", listingID.String()),
		attribute.String("offer.id", offerID.String()),
	)

	// 协议级总超时。一旦第 1 步的 CAS 落地，后续步骤会切换到
	// 不可取消的上下文继续收尾，调用方超时不会被解释为"撤销交易"。
	protoCtx, cancel := context.WithTimeout(ctx, s.opts.FinalizeTimeout)
	defer cancel()

	// 前置校验，全部在任何写入发生之前完成
	listing, err := s.listings.FindByID(protoCtx, listingID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("find listing: %w", err)
	}
	if listing == nil || listing.OwnerID != sellerID {
		return domain.ErrNotAuthorized
	}

	offer, err := s.offers.FindByID(protoCtx, offerID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("find offer: %w", err)
	}
	if offer == nil || !offer.References(listingID) || offer.Status != domain.OfferPending {
		return domain.ErrOfferInvalid
	}

	fctx := &saga.FinalizeContext{
		Ctx:             protoCtx,
		Listing:         listing,
		ChosenOffer:     offer,
		SellerID:        sellerID,
		Tracer:          s.tracer,
		Listings:        s.listings,
		Offers:          s.offers,
		Notifier:        s.notifier,
		VoidMaxAttempts: s.opts.VoidMaxAttempts,
		VoidBaseDelay:   s.opts.VoidBaseDelay,
	}

	if err := s.buildFinalizeChain().Handle(fctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "finalization failed")
		return err
	}

	logger.Ctx(ctx).Info().
		Str("listing", listingID.String()).
		Str("offer", offerID.String()).
		Int("voided", len(fctx.CancelledBuyers())).
		Msg("listing finalized")
	return nil
}

// buildFinalizeChain 组装协议步骤。顺序即契约：
// 先抢占稀缺的商品席位，再提交报价，最后才做允许最终一致的收尾。
func (s *MarketApplicationService) buildFinalizeChain() saga.Handler {
	reserve := &saga.ReserveListingHandler{}
	commit := &saga.CommitOfferHandler{}
	void := &saga.VoidCompetitorsHandler{}
	notify := &saga.NotificationHandler{}

	reserve.SetNext(commit).SetNext(void).SetNext(notify)
	return reserve
}

// SubmitRating 是评价准入口：只有 COMPLETED 状态的报价可以被评价，
// 且每个评价人对同一笔交易只能评价一次。
func (s *MarketApplicationService) SubmitRating(ctx context.Context, offerID, raterID uuid.UUID, score int, comment string) (*domain.Rating, error) {
	ctx, span := s.tracer.Start(ctx, "app.SubmitRating")
	defer span.End()

	offer, err := s.offers.FindByID(ctx, offerID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("find offer: %w", err)
	}
	if offer == nil {
		return nil, domain.ErrOfferNotFound
	}
	if offer.Status != domain.OfferCompleted {
		return nil, domain.ErrOfferNotCompleted
	}

	exists, err := s.ratings.ExistsByOfferAndRater(ctx, offerID, raterID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing rating: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateRating
	}

	rating, err := domain.NewRating(offer, raterID, score, comment)
	if err != nil {
		return nil, err
	}

	// Create 由唯一约束兜底：上面的存在性检查和这里的写入之间
	// 存在并发窗口，冲突时仓储返回 ErrDuplicateRating。
	if err := s.ratings.Create(ctx, rating); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rating, nil
}

// ReconcileStrandedOffers 是残留报价的对账清扫：找出已售出商品下
// 仍处于 PENDING 的报价并作废。纯 CAS 实现，幂等，可与在线成交并发运行。
func (s *MarketApplicationService) ReconcileStrandedOffers(ctx context.Context, batch int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "app.ReconcileStrandedOffers")
	defer span.End()

	stranded, err := s.offers.ListPendingOnSoldListings(ctx, batch)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("list stranded offers: %w", err)
	}

	cancelled := 0
	for _, offer := range stranded {
		ok, err := s.offers.TryTransition(ctx, offer.ID, domain.OfferPending, domain.OfferCancelled)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("offer", offer.ID.String()).Msg("sweep failed to cancel stranded offer")
			continue
		}
		if !ok {
			// 在线成交或上一轮清扫已经处理过，跳过
			continue
		}
		cancelled++
		if offer.ListingID.Valid {
			if nerr := s.notifier.SendItemSold(ctx, offer.BuyerID, offer.ListingID.UUID); nerr != nil {
				logger.Ctx(ctx).Warn().Err(nerr).Str("offer", offer.ID.String()).Msg("sweep failed to publish item_sold notification")
			}
		}
	}

	span.SetAttributes(
		attribute.Int("offers.stranded", len(stranded)),
		attribute.Int("offers.cancelled", cancelled),
	)
	if cancelled > 0 {
		logger.Ctx(ctx).Info().Int("cancelled", cancelled).Msg("reconciliation sweep cancelled stranded offers")
	}
	return cancelled, nil
}

// internal/service/market/domain/repository.go
package domain

import (
	"context"

	"github.com/google/uuid"
)

// ListingRepository 定义了商品聚合的持久化接口。
// TryTransition 是整个成交协议的承重抽象：对存储中单条记录的
// compare-and-swap，绝不允许盲写状态字段。
type ListingRepository interface {
	Create(ctx context.Context, listing *Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*Listing, error)

	// TryTransition 仅当存储中的状态仍等于 expected 时才改写为 next，
	// 返回转移是否生效。对并发调用者必须是原子的。
	TryTransition(ctx context.Context, id uuid.UUID, expected, next Availability) (bool, error)
}

// OfferRepository 定义了报价的持久化接口。
type OfferRepository interface {
	Create(ctx context.Context, offer *Offer) error
	FindByID(ctx context.Context, id uuid.UUID) (*Offer, error)

	// ListByListing 返回某商品下所有报价的快照读。
	// 快照相对并发写入者可能过期，协调器不得假设它反映了每条报价的最新状态。
	ListByListing(ctx context.Context, listingID uuid.UUID) ([]*Offer, error)

	// TryTransition 报价状态的 compare-and-swap。
	// 转移到 COMPLETED 时由实现负责盖 CompletedAt 时间戳。
	TryTransition(ctx context.Context, id uuid.UUID, expected, next OfferStatus) (bool, error)

	// ListPendingOnSoldListings 找出已售出商品下仍处于 PENDING 的残留报价，
	// 供对账清扫使用。
	ListPendingOnSoldListings(ctx context.Context, limit int) ([]*Offer, error)
}

// RatingRepository 定义了评价的持久化接口。
type RatingRepository interface {
	// Create 持久化一条评价。(OfferID, RaterID) 冲突时返回 ErrDuplicateRating。
	Create(ctx context.Context, rating *Rating) error
	ExistsByOfferAndRater(ctx context.Context, offerID, raterID uuid.UUID) (bool, error)
}

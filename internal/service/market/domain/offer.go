// internal/service/market/domain/offer.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OfferKind 区分购买和借用两种意向。
type OfferKind string

const (
	KindPurchase OfferKind = "PURCHASE"
	KindBorrow   OfferKind = "BORROW"
)

// OfferStatus 定义了报价的生命周期状态。
type OfferStatus string

const (
	OfferPending   OfferStatus = "PENDING"   // 买家已出价，等待卖家决定
	OfferCompleted OfferStatus = "COMPLETED" // 卖家接受，交易达成，终态
	OfferCancelled OfferStatus = "CANCELLED" // 同一商品被其他报价成交后作废，终态
)

// offerTransitions: PENDING 是唯一的非终态，COMPLETED / CANCELLED 之间不可互转。
var offerTransitions = map[OfferStatus][]OfferStatus{
	OfferPending:   {OfferCompleted, OfferCancelled},
	OfferCompleted: {},
	OfferCancelled: {},
}

// CanTransitionTo 判断一次报价状态转移是否合法。
func (s OfferStatus) CanTransitionTo(next OfferStatus) bool {
	for _, allowed := range offerTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Offer 代表一个买家对某个商品的购买/借用意向。
// 报价从不物理删除（交易审计需要），商品删除时只置空 ListingID。
type Offer struct {
	ID        uuid.UUID
	ListingID uuid.NullUUID // 弱引用，商品删除后为 NULL
	BuyerID   uuid.UUID
	SellerID  uuid.UUID // 创建时等于 listing.OwnerID
	Kind      OfferKind
	Amount    float64
	Status    OfferStatus
	CreatedAt time.Time
	// CompletedAt 只在转移到 COMPLETED 时由条件转移原语盖戳
	CompletedAt *time.Time
}

// NewOffer 是报价的工厂函数，校验创建时的全部约束。
func NewOffer(listing *Listing, buyerID uuid.UUID, kind OfferKind, amount float64) (*Offer, error) {
	if listing == nil {
		return nil, ErrListingNotFound
	}
	if !listing.AcceptsOffers() {
		return nil, ErrListingNotOpen
	}
	if buyerID == listing.OwnerID {
		return nil, ErrSelfOffer
	}
	switch kind {
	case KindPurchase:
		if amount < 0 {
			return nil, ErrInvalidAmount
		}
	case KindBorrow:
		// 借用不涉及金额
		if amount != 0 {
			return nil, ErrInvalidAmount
		}
	default:
		return nil, ErrInvalidOfferKind
	}

	now := time.Now()
	return &Offer{
		ID:        uuid.New(),
		ListingID: uuid.NullUUID{UUID: listing.ID, Valid: true},
		BuyerID:   buyerID,
		SellerID:  listing.OwnerID,
		Kind:      kind,
		Amount:    amount,
		Status:    OfferPending,
		CreatedAt: now,
	}, nil
}

// References 判断报价是否仍然指向给定商品。
func (o *Offer) References(listingID uuid.UUID) bool {
	return o.ListingID.Valid && o.ListingID.UUID == listingID
}

// Counterpart 返回 userID 在这笔交易中的对手方。
// userID 既不是买家也不是卖家时返回 false。
func (o *Offer) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case o.BuyerID:
		return o.SellerID, true
	case o.SellerID:
		return o.BuyerID, true
	}
	return uuid.Nil, false
}

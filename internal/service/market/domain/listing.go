// internal/service/market/domain/listing.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Availability 定义了商品的可售状态。
type Availability string

const (
	AvailabilityPendingReview Availability = "PENDING_REVIEW" // 等待审核，不可下单
	AvailabilityListed        Availability = "LISTED"         // 在售，可接收报价和成交请求
	AvailabilityRejected      Availability = "REJECTED"       // 审核未通过
	AvailabilitySold          Availability = "SOLD"           // 已售出，终态
)

// Listing 是商品聚合的根实体。
// Availability 字段是整个成交协议的仲裁令牌：LISTED -> SOLD 的条件转移
// 最多只能成功一次，谁转移成功谁就拥有这笔交易。
type Listing struct {
	ID           uuid.UUID
	OwnerID      uuid.UUID // 卖家，创建后不可变
	Title        string
	Price        float64
	Availability Availability
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AcceptsOffers 仅 LISTED 状态的商品可以接收新报价或成交请求。
func (l *Listing) AcceptsOffers() bool {
	return l.Availability == AvailabilityListed
}

// listingTransitions 枚举了合法的状态转移。
// 条件转移原语在执行前必须先通过这张表校验，杜绝非法路径（例如 SOLD -> LISTED
// 只允许出现在成交协议的补偿动作中，见 saga 包）。
var listingTransitions = map[Availability][]Availability{
	AvailabilityPendingReview: {AvailabilityListed, AvailabilityRejected},
	AvailabilityListed:        {AvailabilitySold, AvailabilityRejected},
	// SOLD -> LISTED 是唯一的逆向转移，仅用于提交报价失败后的回滚
	AvailabilitySold:     {AvailabilityListed},
	AvailabilityRejected: {},
}

// CanTransitionTo 判断一次商品状态转移是否合法。
func (a Availability) CanTransitionTo(next Availability) bool {
	for _, allowed := range listingTransitions[a] {
		if allowed == next {
			return true
		}
	}
	return false
}

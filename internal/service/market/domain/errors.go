// internal/service/market/domain/errors.go
package domain

import "errors"

var (
	// ErrNotAuthorized 调用者不是商品的卖家。不可重试。
	ErrNotAuthorized = errors.New("caller is not the listing owner")

	// ErrAlreadyFinalized 商品已被其他成交请求抢先售出（或已下架）。
	// 客户端应刷新商品状态，而不是重试。
	ErrAlreadyFinalized = errors.New("listing is already finalized")

	// ErrOfferInvalid 被选中的报价不存在、不属于该商品或已不处于 PENDING 状态。
	ErrOfferInvalid = errors.New("offer is no longer valid for finalization")

	// ErrOfferNotCompleted 只能对 COMPLETED 状态的报价提交评价。
	ErrOfferNotCompleted = errors.New("offer has not been completed")

	// ErrDuplicateRating 同一评价人对同一笔交易只能评价一次。
	ErrDuplicateRating = errors.New("rating already submitted for this offer")

	ErrListingNotFound  = errors.New("listing not found")
	ErrOfferNotFound    = errors.New("offer not found")
	ErrListingNotOpen   = errors.New("listing does not accept offers")
	ErrSelfOffer        = errors.New("cannot make an offer on your own listing")
	ErrInvalidAmount    = errors.New("offer amount is invalid")
	ErrInvalidOfferKind = errors.New("unknown offer kind")
	ErrRaterNotParty    = errors.New("rater is not a party of this offer")
	ErrInvalidScore     = errors.New("score must be between 1 and 5")

	// ErrStorageUnavailable 底层存储暂时不可用。调用方可以在退避后重试。
	ErrStorageUnavailable = errors.New("storage temporarily unavailable")
)

// IsRetryable 判断一个错误是否值得自动重试。
// 语义性冲突（已售出、报价失效、越权）重试没有意义，只有存储层的
// 瞬时故障才返回 true。
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

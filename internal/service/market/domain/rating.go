// internal/service/market/domain/rating.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Rating 是交易完成后买卖双方互评的记录。
// (OfferID, RaterID) 上有唯一约束，创建后不可修改、不可删除。
type Rating struct {
	ID        uuid.UUID
	OfferID   uuid.UUID
	RaterID   uuid.UUID
	RatedID   uuid.UUID // 自动推导为 rater 在该交易中的对手方
	Score     int       // 1..5
	Comment   string
	CreatedAt time.Time
}

// NewRating 校验并构造一条评价。报价状态的检查（必须 COMPLETED）
// 属于应用层的评价准入逻辑，这里只负责结构性校验。
func NewRating(offer *Offer, raterID uuid.UUID, score int, comment string) (*Rating, error) {
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	rated, ok := offer.Counterpart(raterID)
	if !ok {
		return nil, ErrRaterNotParty
	}
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	return &Rating{
		ID:        uuid.New(),
		OfferID:   offer.ID,
		RaterID:   raterID,
		RatedID:   rated,
		Score:     score,
		Comment:   comment,
		CreatedAt: time.Now(),
	}, nil
}

// internal/service/market/infrastructure/gorm_model.go
package infrastructure

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/service/market/domain"
)

// ListingModel 对应数据库中的 listing 表。
type ListingModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	OwnerID      string `gorm:"size:36;index"`
	Title        string
	Price        float64 `gorm:"type:decimal(10,2)"`
	Availability string  `gorm:"size:20;index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ListingModel) TableName() string {
	return "listing"
}

// OfferModel 对应数据库中的 offer 表。
// ListingID 可空：商品删除时报价保留，引用置 NULL（审计要求）。
type OfferModel struct {
	ID          string         `gorm:"primaryKey;size:36"`
	ListingID   sql.NullString `gorm:"size:36;index"`
	BuyerID     string         `gorm:"size:36;index"`
	SellerID    string         `gorm:"size:36"`
	Kind        string         `gorm:"size:20"`
	Amount      float64        `gorm:"type:decimal(10,2)"`
	Status      string         `gorm:"size:20;index"`
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}

func (OfferModel) TableName() string {
	return "offer"
}

// RatingModel 对应数据库中的 rating 表。
// (offer_id, rater_id) 的唯一索引是"每人每笔交易一次评价"的最终防线。
type RatingModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	OfferID   string `gorm:"size:36;uniqueIndex:uk_offer_rater"`
	RaterID   string `gorm:"size:36;uniqueIndex:uk_offer_rater"`
	RatedID   string `gorm:"size:36;index"`
	Score     int    `gorm:"type:tinyint"`
	Comment   string `gorm:"type:text"`
	CreatedAt time.Time
}

func (RatingModel) TableName() string {
	return "rating"
}

// --- Mapper: 数据库模型 <-> 领域模型 ---

func toDomainListing(m *ListingModel) *domain.Listing {
	return &domain.Listing{
		ID:           uuid.MustParse(m.ID),
		OwnerID:      uuid.MustParse(m.OwnerID),
		Title:        m.Title,
		Price:        m.Price,
		Availability: domain.Availability(m.Availability),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func fromDomainListing(l *domain.Listing) *ListingModel {
	return &ListingModel{
		ID:           l.ID.String(),
		OwnerID:      l.OwnerID.String(),
		Title:        l.Title,
		Price:        l.Price,
		Availability: string(l.Availability),
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
}

func toDomainOffer(m *OfferModel) *domain.Offer {
	o := &domain.Offer{
		ID:        uuid.MustParse(m.ID),
		BuyerID:   uuid.MustParse(m.BuyerID),
		SellerID:  uuid.MustParse(m.SellerID),
		Kind:      domain.OfferKind(m.Kind),
		Amount:    m.Amount,
		Status:    domain.OfferStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
	if m.ListingID.Valid {
		o.ListingID = uuid.NullUUID{UUID: uuid.MustParse(m.ListingID.String), Valid: true}
	}
	if m.CompletedAt.Valid {
		t := m.CompletedAt.Time
		o.CompletedAt = &t
	}
	return o
}

func fromDomainOffer(o *domain.Offer) *OfferModel {
	m := &OfferModel{
		ID:        o.ID.String(),
		BuyerID:   o.BuyerID.String(),
		SellerID:  o.SellerID.String(),
		Kind:      string(o.Kind),
		Amount:    o.Amount,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
	}
	if o.ListingID.Valid {
		m.ListingID = sql.NullString{String: o.ListingID.UUID.String(), Valid: true}
	}
	if o.CompletedAt != nil {
		m.CompletedAt = sql.NullTime{Time: *o.CompletedAt, Valid: true}
	}
	return m
}

func fromDomainRating(r *domain.Rating) *RatingModel {
	return &RatingModel{
		ID:        r.ID.String(),
		OfferID:   r.OfferID.String(),
		RaterID:   r.RaterID.String(),
		RatedID:   r.RatedID.String(),
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

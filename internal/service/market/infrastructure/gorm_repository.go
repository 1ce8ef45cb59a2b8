// internal/service/market/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"bazaar/internal/service/market/domain"
)

const mysqlErrDuplicateEntry = 1062

// storageErr 把底层存储错误归一到可重试的 ErrStorageUnavailable，
// 原始错误保留在消息里供排查。上层用 domain.IsRetryable 判别。
func storageErr(op string, err error) error {
	return errors.Wrapf(domain.ErrStorageUnavailable, "%s: %v", op, err)
}

// GormListingRepository 是 ListingRepository 的 GORM/MySQL 实现。
type GormListingRepository struct {
	db *gorm.DB
}

func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

func (r *GormListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	if err := r.db.WithContext(ctx).Create(fromDomainListing(listing)).Error; err != nil {
		return storageErr("insert listing", err)
	}
	return nil
}

func (r *GormListingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	var model ListingModel
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("select listing", err)
	}
	return toDomainListing(&model), nil
}

// TryTransition 用单条带状态谓词的 UPDATE 实现 compare-and-swap：
// UPDATE listing SET availability = next WHERE id = ? AND availability = expected。
// RowsAffected 即 CAS 是否生效，MySQL 的行锁保证了并发调用者之间的原子性。
func (r *GormListingRepository) TryTransition(ctx context.Context, id uuid.UUID, expected, next domain.Availability) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, errors.Errorf("illegal listing transition %s -> %s", expected, next)
	}
	res := r.db.WithContext(ctx).
		Model(&ListingModel{}).
		Where("id = ? AND availability = ?", id.String(), string(expected)).
		Updates(map[string]interface{}{
			"availability": string(next),
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, storageErr("cas listing availability", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// GormOfferRepository 是 OfferRepository 的 GORM/MySQL 实现。
type GormOfferRepository struct {
	db *gorm.DB
}

func NewGormOfferRepository(db *gorm.DB) *GormOfferRepository {
	return &GormOfferRepository{db: db}
}

func (r *GormOfferRepository) Create(ctx context.Context, offer *domain.Offer) error {
	if err := r.db.WithContext(ctx).Create(fromDomainOffer(offer)).Error; err != nil {
		return storageErr("insert offer", err)
	}
	return nil
}

func (r *GormOfferRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	var model OfferModel
	err := r.db.WithContext(ctx).Where("id = ?", id.String()).First(&model).Error
	if err != nil {
		if goerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageErr("select offer", err)
	}
	return toDomainOffer(&model), nil
}

func (r *GormOfferRepository) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*domain.Offer, error) {
	var models []OfferModel
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID.String()).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, storageErr("list offers by listing", err)
	}
	offers := make([]*domain.Offer, 0, len(models))
	for i := range models {
		offers = append(offers, toDomainOffer(&models[i]))
	}
	return offers, nil
}

func (r *GormOfferRepository) TryTransition(ctx context.Context, id uuid.UUID, expected, next domain.OfferStatus) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, errors.Errorf("illegal offer transition %s -> %s", expected, next)
	}
	updates := map[string]interface{}{
		"status": string(next),
	}
	if next == domain.OfferCompleted {
		// completed_at 只在这条转移路径上盖戳，且与状态变更同一条语句
		updates["completed_at"] = time.Now()
	}
	res := r.db.WithContext(ctx).
		Model(&OfferModel{}).
		Where("id = ? AND status = ?", id.String(), string(expected)).
		Updates(updates)
	if res.Error != nil {
		return false, storageErr("cas offer status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *GormOfferRepository) ListPendingOnSoldListings(ctx context.Context, limit int) ([]*domain.Offer, error) {
	var models []OfferModel
	err := r.db.WithContext(ctx).
		Joins("JOIN listing ON listing.id = offer.listing_id").
		Where("offer.status = ? AND listing.availability = ?", string(domain.OfferPending), string(domain.AvailabilitySold)).
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, storageErr("list stranded offers", err)
	}
	offers := make([]*domain.Offer, 0, len(models))
	for i := range models {
		offers = append(offers, toDomainOffer(&models[i]))
	}
	return offers, nil
}

// GormRatingRepository 是 RatingRepository 的 GORM/MySQL 实现。
type GormRatingRepository struct {
	db *gorm.DB
}

func NewGormRatingRepository(db *gorm.DB) *GormRatingRepository {
	return &GormRatingRepository{db: db}
}

// Create 依赖 uk_offer_rater 唯一索引拦截并发的重复评价，
// MySQL 1062 冲突翻译成领域错误。
func (r *GormRatingRepository) Create(ctx context.Context, rating *domain.Rating) error {
	err := r.db.WithContext(ctx).Create(fromDomainRating(rating)).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if goerrors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
			return domain.ErrDuplicateRating
		}
		return storageErr("insert rating", err)
	}
	return nil
}

func (r *GormRatingRepository) ExistsByOfferAndRater(ctx context.Context, offerID, raterID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RatingModel{}).
		Where("offer_id = ? AND rater_id = ?", offerID.String(), raterID.String()).
		Count(&count).Error
	if err != nil {
		return false, storageErr("count ratings", err)
	}
	return count > 0, nil
}

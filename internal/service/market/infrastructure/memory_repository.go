// internal/service/market/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"bazaar/internal/service/market/domain"
)

// MemoryRepository 是三个仓储接口的进程内实现，用于测试和本地运行。
// 条件转移的原子性由互斥锁保证，对上层暴露的语义与 MySQL 实现完全一致。
type MemoryRepository struct {
	mu       sync.RWMutex
	listings map[uuid.UUID]*domain.Listing
	offers   map[uuid.UUID]*domain.Offer
	ratings  map[ratingKey]*domain.Rating

	// snapshotFailures > 0 时 ListByListing 返回存储错误并递减，
	// 用于测试协议第 3 步的退避重试路径。
	snapshotFailures int
}

type ratingKey struct {
	offerID uuid.UUID
	raterID uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		listings: make(map[uuid.UUID]*domain.Listing),
		offers:   make(map[uuid.UUID]*domain.Offer),
		ratings:  make(map[ratingKey]*domain.Rating),
	}
}

// FailNextSnapshots 注入 n 次快照读失败。
func (m *MemoryRepository) FailNextSnapshots(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotFailures = n
}

// --- ListingRepository ---

func (m *MemoryRepository) Create(ctx context.Context, listing *domain.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *listing
	m.listings[listing.ID] = &cp
	return nil
}

func (m *MemoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryRepository) TryTransition(ctx context.Context, id uuid.UUID, expected, next domain.Availability) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, errors.Errorf("illegal listing transition %s -> %s", expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok || l.Availability != expected {
		return false, nil
	}
	l.Availability = next
	l.UpdatedAt = time.Now()
	return true, nil
}

// --- OfferRepository ---
// Listing 和 Offer 的方法名有冲突（Create/FindByID/TryTransition 签名不同），
// 因此 Offer 侧的接口由内嵌的 offerView 提供。

// Offers 返回实现 domain.OfferRepository 的视图。
func (m *MemoryRepository) Offers() domain.OfferRepository {
	return &offerView{m}
}

// Ratings 返回实现 domain.RatingRepository 的视图。
func (m *MemoryRepository) Ratings() domain.RatingRepository {
	return &ratingView{m}
}

type offerView struct {
	m *MemoryRepository
}

func (v *offerView) Create(ctx context.Context, offer *domain.Offer) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	cp := *offer
	v.m.offers[offer.ID] = &cp
	return nil
}

func (v *offerView) FindByID(ctx context.Context, id uuid.UUID) (*domain.Offer, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	o, ok := v.m.offers[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (v *offerView) ListByListing(ctx context.Context, listingID uuid.UUID) ([]*domain.Offer, error) {
	v.m.mu.Lock()
	if v.m.snapshotFailures > 0 {
		v.m.snapshotFailures--
		v.m.mu.Unlock()
		return nil, domain.ErrStorageUnavailable
	}
	v.m.mu.Unlock()

	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var out []*domain.Offer
	for _, o := range v.m.offers {
		if o.References(listingID) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (v *offerView) TryTransition(ctx context.Context, id uuid.UUID, expected, next domain.OfferStatus) (bool, error) {
	if !expected.CanTransitionTo(next) {
		return false, errors.Errorf("illegal offer transition %s -> %s", expected, next)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	o, ok := v.m.offers[id]
	if !ok || o.Status != expected {
		return false, nil
	}
	o.Status = next
	if next == domain.OfferCompleted {
		now := time.Now()
		o.CompletedAt = &now
	}
	return true, nil
}

func (v *offerView) ListPendingOnSoldListings(ctx context.Context, limit int) ([]*domain.Offer, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	var out []*domain.Offer
	for _, o := range v.m.offers {
		if len(out) >= limit {
			break
		}
		if o.Status != domain.OfferPending || !o.ListingID.Valid {
			continue
		}
		l, ok := v.m.listings[o.ListingID.UUID]
		if ok && l.Availability == domain.AvailabilitySold {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

type ratingView struct {
	m *MemoryRepository
}

func (v *ratingView) Create(ctx context.Context, rating *domain.Rating) error {
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	key := ratingKey{offerID: rating.OfferID, raterID: rating.RaterID}
	if _, exists := v.m.ratings[key]; exists {
		return domain.ErrDuplicateRating
	}
	cp := *rating
	v.m.ratings[key] = &cp
	return nil
}

func (v *ratingView) ExistsByOfferAndRater(ctx context.Context, offerID, raterID uuid.UUID) (bool, error) {
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	_, ok := v.m.ratings[ratingKey{offerID: offerID, raterID: raterID}]
	return ok, nil
}

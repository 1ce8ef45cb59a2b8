package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bazaar/internal/service/market/domain"
)

func seedListing(t *testing.T, repo *MemoryRepository, availability domain.Availability) *domain.Listing {
	t.Helper()
	l := &domain.Listing{
		ID:           uuid.New(),
		OwnerID:      uuid.New(),
		Title:        "bookshelf",
		Availability: availability,
	}
	require.NoError(t, repo.Create(context.Background(), l))
	return l
}

func seedOffer(t *testing.T, repo *MemoryRepository, listing *domain.Listing) *domain.Offer {
	t.Helper()
	o, err := domain.NewOffer(listing, uuid.New(), domain.KindPurchase, 50)
	require.NoError(t, err)
	require.NoError(t, repo.Offers().Create(context.Background(), o))
	return o
}

// 条件转移是整个成交协议的线性化点：无论多少并发竞争者，
// LISTED -> SOLD 最多成功一次。
func TestListingTryTransitionRace(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	listing := seedListing(t, repo, domain.AvailabilityListed)
	ctx := context.Background()

	const contenders = 32
	wins := make([]bool, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.TryTransition(ctx, listing.ID, domain.AvailabilityListed, domain.AvailabilitySold)
			assert.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	got, err := repo.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilitySold, got.Availability)
}

func TestListingTryTransitionRejectsIllegalPath(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	listing := seedListing(t, repo, domain.AvailabilityListed)
	ctx := context.Background()

	_, err := repo.TryTransition(ctx, listing.ID, domain.AvailabilityListed, domain.AvailabilityPendingReview)
	assert.Error(t, err)

	// 状态不匹配不是错误，只是 CAS 失败
	ok, err := repo.TryTransition(ctx, listing.ID, domain.AvailabilitySold, domain.AvailabilityListed)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.TryTransition(ctx, uuid.New(), domain.AvailabilityListed, domain.AvailabilitySold)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOfferTryTransitionStampsCompletedAt(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	listing := seedListing(t, repo, domain.AvailabilityListed)
	offer := seedOffer(t, repo, listing)
	ctx := context.Background()

	ok, err := repo.Offers().TryTransition(ctx, offer.ID, domain.OfferPending, domain.OfferCompleted)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.Offers().FindByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// 终态之后的任何转移都非法
	_, err = repo.Offers().TryTransition(ctx, offer.ID, domain.OfferCompleted, domain.OfferCancelled)
	assert.Error(t, err)
}

func TestListPendingOnSoldListings(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	ctx := context.Background()

	sold := seedListing(t, repo, domain.AvailabilityListed)
	open := seedListing(t, repo, domain.AvailabilityListed)

	stranded := seedOffer(t, repo, sold)
	seedOffer(t, repo, open)

	ok, err := repo.TryTransition(ctx, sold.ID, domain.AvailabilityListed, domain.AvailabilitySold)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.Offers().ListPendingOnSoldListings(ctx, 100)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stranded.ID, got[0].ID)
}

func TestRatingCreateEnforcesUniqueness(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	ctx := context.Background()

	rating := &domain.Rating{ID: uuid.New(), OfferID: uuid.New(), RaterID: uuid.New(), Score: 5}
	require.NoError(t, repo.Ratings().Create(ctx, rating))

	dup := *rating
	dup.ID = uuid.New()
	assert.ErrorIs(t, repo.Ratings().Create(ctx, &dup), domain.ErrDuplicateRating)

	exists, err := repo.Ratings().ExistsByOfferAndRater(ctx, rating.OfferID, rating.RaterID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFailNextSnapshots(t *testing.T) {
	t.Parallel()
	repo := NewMemoryRepository()
	listing := seedListing(t, repo, domain.AvailabilityListed)
	seedOffer(t, repo, listing)
	ctx := context.Background()

	repo.FailNextSnapshots(1)
	_, err := repo.Offers().ListByListing(ctx, listing.ID)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	offers, err := repo.Offers().ListByListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, offers, 1)
}

package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"bazaar/internal/service/market/domain"
	"bazaar/internal/service/market/infrastructure"
)

// fakeNotifier 记录所有发出的通知，供测试断言扇出行为。
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	fail bool
}

type sentNotice struct {
	kind      string
	recipient uuid.UUID
}

func (f *fakeNotifier) record(kind string, recipient uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, sentNotice{kind: kind, recipient: recipient})
	return nil
}

func (f *fakeNotifier) SendOfferReceived(ctx context.Context, offer *domain.Offer) error {
	return f.record("offer_received", offer.SellerID)
}

func (f *fakeNotifier) SendPurchaseConfirmed(ctx context.Context, offer *domain.Offer) error {
	return f.record("purchase_confirmed", offer.BuyerID)
}

func (f *fakeNotifier) SendItemSold(ctx context.Context, recipientID, listingID uuid.UUID) error {
	return f.record("item_sold", recipientID)
}

func (f *fakeNotifier) byKind(kind string) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []uuid.UUID
	for _, n := range f.sent {
		if n.kind == kind {
			out = append(out, n.recipient)
		}
	}
	return out
}

// lostCASOffers 包装报价仓储，让指定报价的第一次条件转移返回 false，
// 模拟提交报价时输掉并发竞争的场景。
type lostCASOffers struct {
	domain.OfferRepository
	loseID uuid.UUID
	mu     sync.Mutex
	lost   bool
}

func (l *lostCASOffers) TryTransition(ctx context.Context, id uuid.UUID, expected, next domain.OfferStatus) (bool, error) {
	l.mu.Lock()
	shouldLose := id == l.loseID && !l.lost
	if shouldLose {
		l.lost = true
	}
	l.mu.Unlock()
	if shouldLose {
		return false, nil
	}
	return l.OfferRepository.TryTransition(ctx, id, expected, next)
}

type fixture struct {
	repo     *infrastructure.MemoryRepository
	notifier *fakeNotifier
	svc      *MarketApplicationService

	seller  uuid.UUID
	listing *domain.Listing
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	repo := infrastructure.NewMemoryRepository()
	notifier := &fakeNotifier{}
	svc := NewMarketApplicationService(repo, repo.Offers(), repo.Ratings(), notifier, otel.Tracer("test"), opts)

	seller := uuid.New()
	listing := &domain.Listing{
		ID:           uuid.New(),
		OwnerID:      seller,
		Title:        "camera lens",
		Price:        300,
		Availability: domain.AvailabilityListed,
	}
	require.NoError(t, repo.Create(context.Background(), listing))

	return &fixture{repo: repo, notifier: notifier, svc: svc, seller: seller, listing: listing}
}

func (f *fixture) addOffer(t *testing.T) *domain.Offer {
	t.Helper()
	offer, err := f.svc.CreateOffer(context.Background(), f.listing.ID, uuid.New(), domain.KindPurchase, 250)
	require.NoError(t, err)
	return offer
}

func fastOpts() Options {
	return Options{
		FinalizeTimeout: 2 * time.Second,
		VoidMaxAttempts: 5,
		VoidBaseDelay:   time.Millisecond,
	}
}

func TestCreateOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	offer := f.addOffer(t)
	assert.Equal(t, domain.OfferPending, offer.Status)

	// 卖家收到 offer_received 通知
	assert.Equal(t, []uuid.UUID{f.seller}, f.notifier.byKind("offer_received"))

	t.Run("unknown listing", func(t *testing.T) {
		_, err := f.svc.CreateOffer(ctx, uuid.New(), uuid.New(), domain.KindPurchase, 10)
		assert.ErrorIs(t, err, domain.ErrListingNotFound)
	})

	t.Run("notifier failure does not fail the offer", func(t *testing.T) {
		f.notifier.fail = true
		defer func() { f.notifier.fail = false }()
		_, err := f.svc.CreateOffer(ctx, f.listing.ID, uuid.New(), domain.KindPurchase, 10)
		assert.NoError(t, err)
	})
}

func TestFinalizeHappyPath(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	winner := f.addOffer(t)
	loser1 := f.addOffer(t)
	loser2 := f.addOffer(t)

	require.NoError(t, f.svc.Finalize(ctx, f.listing.ID, winner.ID, f.seller))

	listing, err := f.repo.FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilitySold, listing.Availability)

	got, err := f.repo.Offers().FindByID(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)

	for _, id := range []uuid.UUID{loser1.ID, loser2.ID} {
		got, err := f.repo.Offers().FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.OfferCancelled, got.Status)
	}

	assert.Equal(t, []uuid.UUID{winner.BuyerID}, f.notifier.byKind("purchase_confirmed"))
	assert.ElementsMatch(t, []uuid.UUID{loser1.BuyerID, loser2.BuyerID}, f.notifier.byKind("item_sold"))
}

func TestFinalizeConcurrentAtMostOneSale(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	const buyers = 8
	offers := make([]*domain.Offer, buyers)
	for i := range offers {
		offers[i] = f.addOffer(t)
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.Finalize(ctx, f.listing.ID, offers[i].ID, f.seller)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// 输家要么抢席位失败，要么自己的报价已被胜者作废
		assert.True(t,
			errors.Is(err, domain.ErrAlreadyFinalized) || errors.Is(err, domain.ErrOfferInvalid),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded, "exactly one finalization must win")

	listing, err := f.repo.FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilitySold, listing.Availability)

	completed := 0
	for _, o := range offers {
		got, err := f.repo.Offers().FindByID(ctx, o.ID)
		require.NoError(t, err)
		if got.Status == domain.OfferCompleted {
			completed++
		} else {
			assert.Equal(t, domain.OfferCancelled, got.Status)
		}
	}
	assert.Equal(t, 1, completed)
	assert.Len(t, f.notifier.byKind("purchase_confirmed"), 1)
}

func TestFinalizeNotAuthorized(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()
	offer := f.addOffer(t)

	err := f.svc.Finalize(ctx, f.listing.ID, offer.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	// 商品不存在同样按越权处理，不泄露存在性
	err = f.svc.Finalize(ctx, uuid.New(), offer.ID, f.seller)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	listing, ferr := f.repo.FindByID(ctx, f.listing.ID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.AvailabilityListed, listing.Availability)

	got, ferr := f.repo.Offers().FindByID(ctx, offer.ID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.OfferPending, got.Status)
}

func TestFinalizeOfferInvalid(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()
	f.addOffer(t)

	t.Run("unknown offer", func(t *testing.T) {
		err := f.svc.Finalize(ctx, f.listing.ID, uuid.New(), f.seller)
		assert.ErrorIs(t, err, domain.ErrOfferInvalid)
	})

	t.Run("offer for another listing", func(t *testing.T) {
		other := &domain.Listing{ID: uuid.New(), OwnerID: f.seller, Availability: domain.AvailabilityListed}
		require.NoError(t, f.repo.Create(ctx, other))
		foreign, err := f.svc.CreateOffer(ctx, other.ID, uuid.New(), domain.KindPurchase, 10)
		require.NoError(t, err)

		err = f.svc.Finalize(ctx, f.listing.ID, foreign.ID, f.seller)
		assert.ErrorIs(t, err, domain.ErrOfferInvalid)
	})

	// 前置校验失败不得改变商品状态
	listing, err := f.repo.FindByID(ctx, f.listing.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityListed, listing.Availability)
}

func TestFinalizeCommitLostRollsBackListing(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	offer := f.addOffer(t)

	// 席位抢占成功后，提交报价的条件转移输掉竞争：
	// 补偿动作必须把商品回滚到 LISTED
	offers := &lostCASOffers{OfferRepository: f.repo.Offers(), loseID: offer.ID}
	svc := NewMarketApplicationService(f.repo, offers, f.repo.Ratings(), f.notifier, otel.Tracer("test"), fastOpts())

	err := svc.Finalize(ctx, f.listing.ID, offer.ID, f.seller)
	assert.ErrorIs(t, err, domain.ErrOfferInvalid)

	listing, ferr := f.repo.FindByID(ctx, f.listing.ID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.AvailabilityListed, listing.Availability, "listing must be rolled back after commit failure")

	got, ferr := f.repo.Offers().FindByID(ctx, offer.ID)
	require.NoError(t, ferr)
	assert.Equal(t, domain.OfferPending, got.Status)

	// 回滚后同一报价可以再次成交
	require.NoError(t, svc.Finalize(ctx, f.listing.ID, offer.ID, f.seller))
}

func TestFinalizeVoidSnapshotRetries(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	winner := f.addOffer(t)
	loser := f.addOffer(t)

	// 前两次快照读失败，退避重试后第三次成功
	f.repo.FailNextSnapshots(2)
	require.NoError(t, f.svc.Finalize(ctx, f.listing.ID, winner.ID, f.seller))

	got, err := f.repo.Offers().FindByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCancelled, got.Status)
}

func TestFinalizeVoidExhaustionLeavesStrandedOffers(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Options{
		FinalizeTimeout: 2 * time.Second,
		VoidMaxAttempts: 2,
		VoidBaseDelay:   time.Millisecond,
	})
	ctx := context.Background()

	winner := f.addOffer(t)
	loser := f.addOffer(t)

	// 快照读一直失败：交易本身必须仍然成功，竞争报价留给对账清扫
	f.repo.FailNextSnapshots(10)
	require.NoError(t, f.svc.Finalize(ctx, f.listing.ID, winner.ID, f.seller))

	got, err := f.repo.Offers().FindByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferPending, got.Status, "stranded offer remains pending until the sweep")

	cancelled, err := f.svc.ReconcileStrandedOffers(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, cancelled)

	got, err = f.repo.Offers().FindByID(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OfferCancelled, got.Status)
	assert.Contains(t, f.notifier.byKind("item_sold"), loser.BuyerID)

	// 清扫是幂等的
	cancelled, err = f.svc.ReconcileStrandedOffers(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, cancelled)
}

func TestSubmitRating(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	offer := f.addOffer(t)

	t.Run("pending offer cannot be rated", func(t *testing.T) {
		_, err := f.svc.SubmitRating(ctx, offer.ID, offer.BuyerID, 5, "")
		assert.ErrorIs(t, err, domain.ErrOfferNotCompleted)
	})

	require.NoError(t, f.svc.Finalize(ctx, f.listing.ID, offer.ID, f.seller))

	t.Run("both parties rate once", func(t *testing.T) {
		rating, err := f.svc.SubmitRating(ctx, offer.ID, offer.BuyerID, 5, "smooth deal")
		require.NoError(t, err)
		assert.Equal(t, f.seller, rating.RatedID)

		rating, err = f.svc.SubmitRating(ctx, offer.ID, f.seller, 4, "")
		require.NoError(t, err)
		assert.Equal(t, offer.BuyerID, rating.RatedID)
	})

	t.Run("duplicate rating rejected", func(t *testing.T) {
		_, err := f.svc.SubmitRating(ctx, offer.ID, offer.BuyerID, 1, "changed my mind")
		assert.ErrorIs(t, err, domain.ErrDuplicateRating)
	})

	t.Run("stranger rejected", func(t *testing.T) {
		_, err := f.svc.SubmitRating(ctx, offer.ID, uuid.New(), 3, "")
		assert.ErrorIs(t, err, domain.ErrRaterNotParty)
	})

	t.Run("unknown offer", func(t *testing.T) {
		_, err := f.svc.SubmitRating(ctx, uuid.New(), offer.BuyerID, 3, "")
		assert.ErrorIs(t, err, domain.ErrOfferNotFound)
	})
}

func TestRatingOnCancelledOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fastOpts())
	ctx := context.Background()

	winner := f.addOffer(t)
	loser := f.addOffer(t)
	require.NoError(t, f.svc.Finalize(ctx, f.listing.ID, winner.ID, f.seller))

	// 被作废的报价不构成交易，不可评价
	_, err := f.svc.SubmitRating(ctx, loser.ID, loser.BuyerID, 1, "")
	assert.ErrorIs(t, err, domain.ErrOfferNotCompleted)
}

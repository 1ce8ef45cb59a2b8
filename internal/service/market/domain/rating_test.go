package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRating(t *testing.T) {
	t.Parallel()

	seller := uuid.New()
	buyer := uuid.New()
	offer := &Offer{ID: uuid.New(), BuyerID: buyer, SellerID: seller, Status: OfferCompleted}

	t.Run("buyer rates seller", func(t *testing.T) {
		rating, err := NewRating(offer, buyer, 5, "great seller")
		require.NoError(t, err)
		assert.Equal(t, seller, rating.RatedID)
		assert.Equal(t, offer.ID, rating.OfferID)
	})

	t.Run("seller rates buyer", func(t *testing.T) {
		rating, err := NewRating(offer, seller, 4, "")
		require.NoError(t, err)
		assert.Equal(t, buyer, rating.RatedID)
	})

	t.Run("stranger cannot rate", func(t *testing.T) {
		_, err := NewRating(offer, uuid.New(), 3, "")
		assert.ErrorIs(t, err, ErrRaterNotParty)
	})

	t.Run("score bounds", func(t *testing.T) {
		for _, score := range []int{0, -1, 6} {
			_, err := NewRating(offer, buyer, score, "")
			assert.ErrorIs(t, err, ErrInvalidScore, "score %d", score)
		}
	})

	t.Run("nil offer", func(t *testing.T) {
		_, err := NewRating(nil, buyer, 5, "")
		assert.ErrorIs(t, err, ErrOfferNotFound)
	})
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryable(ErrStorageUnavailable))
	assert.False(t, IsRetryable(ErrAlreadyFinalized))
	assert.False(t, IsRetryable(ErrNotAuthorized))
	assert.False(t, IsRetryable(nil))
}

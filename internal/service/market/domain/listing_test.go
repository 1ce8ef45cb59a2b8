package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailabilityCanTransitionTo(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		from Availability
		to   Availability
		want bool
	}{
		{"review to listed", AvailabilityPendingReview, AvailabilityListed, true},
		{"review to rejected", AvailabilityPendingReview, AvailabilityRejected, true},
		{"review to sold", AvailabilityPendingReview, AvailabilitySold, false},
		{"listed to sold", AvailabilityListed, AvailabilitySold, true},
		{"listed to rejected", AvailabilityListed, AvailabilityRejected, true},
		{"listed to review", AvailabilityListed, AvailabilityPendingReview, false},
		// SOLD -> LISTED 是补偿回滚专用的唯一逆向转移
		{"sold to listed", AvailabilitySold, AvailabilityListed, true},
		{"sold to rejected", AvailabilitySold, AvailabilityRejected, false},
		{"rejected is terminal", AvailabilityRejected, AvailabilityListed, false},
		{"self transition", AvailabilityListed, AvailabilityListed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestListingAcceptsOffers(t *testing.T) {
	t.Parallel()

	l := &Listing{Availability: AvailabilityListed}
	assert.True(t, l.AcceptsOffers())

	for _, a := range []Availability{AvailabilityPendingReview, AvailabilityRejected, AvailabilitySold} {
		l.Availability = a
		assert.False(t, l.AcceptsOffers(), "availability %s must not accept offers", a)
	}
}

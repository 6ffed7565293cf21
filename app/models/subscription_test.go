package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRemainingCredits(t *testing.T) {
	sub := &Subscription{MonthlyCredits: 50, CreditsUsed: 12}
	assert.Equal(t, 38, sub.RemainingCredits())

	sub = &Subscription{MonthlyCredits: 5, CreditsUsed: 5}
	assert.Equal(t, 0, sub.RemainingCredits())

	// Negative quota is the unlimited sentinel and passes through untouched
	sub = &Subscription{MonthlyCredits: -1, CreditsUsed: 9000}
	assert.Equal(t, -1, sub.RemainingCredits())
}

func TestSubscriptionIsTrialExpired(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	sub := &Subscription{Status: SubscriptionStatusTrial, TrialEndDate: &past}
	assert.True(t, sub.IsTrialExpired(now))

	sub = &Subscription{Status: SubscriptionStatusTrial, TrialEndDate: &future}
	assert.False(t, sub.IsTrialExpired(now))

	// Only TRIAL subscriptions can expire through the trial window
	sub = &Subscription{Status: SubscriptionStatusActive, TrialEndDate: &past}
	assert.False(t, sub.IsTrialExpired(now))

	sub = &Subscription{Status: SubscriptionStatusTrial}
	assert.False(t, sub.IsTrialExpired(now))
}

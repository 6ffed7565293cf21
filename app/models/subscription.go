package models

import "time"

const (
	SubscriptionStatusTrial    = "TRIAL"
	SubscriptionStatusActive   = "ACTIVE"
	SubscriptionStatusCanceled = "CANCELED"
	SubscriptionStatusExpired  = "EXPIRED"
	SubscriptionStatusPastDue  = "PAST_DUE"
)

// Subscription mirrors the Stripe subscription state for exactly one user
// and carries the local credit quota. RemainingCredits is always derived
// from MonthlyCredits and CreditsUsed, never stored.
type Subscription struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UserID               uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	Plan                 string     `gorm:"type:varchar(20);not null;default:'FREE'" json:"plan"`
	Status               string     `gorm:"type:varchar(20);not null;default:'TRIAL';index" json:"status"`
	MonthlyCredits       int        `gorm:"not null;default:5" json:"monthly_credits"`
	CreditsUsed          int        `gorm:"not null;default:0" json:"credits_used"`
	TrialStartDate       *time.Time `gorm:"type:timestamp" json:"trial_start_date,omitempty"`
	TrialEndDate         *time.Time `gorm:"type:timestamp" json:"trial_end_date,omitempty"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd    bool       `gorm:"not null;default:false" json:"cancel_at_period_end"`
	StripeCustomerID     string     `gorm:"type:varchar(191);index" json:"-"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);index" json:"-"`
	StripePriceID        string     `gorm:"type:varchar(191)" json:"-"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// RemainingCredits computes the derived credit balance: the unlimited
// sentinel for PREMIUM, otherwise quota minus consumption.
func (s *Subscription) RemainingCredits() int {
	if s.MonthlyCredits < 0 {
		return s.MonthlyCredits
	}
	return s.MonthlyCredits - s.CreditsUsed
}

// IsTrialExpired reports whether a TRIAL subscription has passed its trial
// window at the given instant.
func (s *Subscription) IsTrialExpired(now time.Time) bool {
	return s.Status == SubscriptionStatusTrial &&
		s.TrialEndDate != nil &&
		now.After(*s.TrialEndDate)
}

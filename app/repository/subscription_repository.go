package repository

import (
	"github.com/coachai-app/coachai/app/models"
	"gorm.io/gorm"
)

// subscriptionRepository implements the SubscriptionRepository interface
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository instance
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Create creates a new subscription row
func (r *subscriptionRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

// GetByUserID retrieves the subscription owned by the given user
func (r *subscriptionRepository) GetByUserID(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByStripeCustomerID resolves a Stripe customer id to the local subscription
func (r *subscriptionRepository) GetByStripeCustomerID(customerID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_customer_id = ?", customerID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByStripeSubscriptionID resolves a Stripe subscription id to the local subscription
func (r *subscriptionRepository) GetByStripeSubscriptionID(subscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("stripe_subscription_id = ?", subscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Update saves the full subscription row
func (r *subscriptionRepository) Update(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

// UpdateFields applies a partial column update for the user's subscription
func (r *subscriptionRepository) UpdateFields(userID uint, fields map[string]interface{}) error {
	return r.db.Model(&models.Subscription{}).
		Where("user_id = ?", userID).
		Updates(fields).Error
}

// ConsumeCredit performs the conditional atomic increment that prevents
// concurrent sends from overspending: the row only updates while quota
// remains (negative quota is the unlimited sentinel and always passes).
func (r *subscriptionRepository) ConsumeCredit(userID uint) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("user_id = ? AND (monthly_credits < 0 OR credits_used < monthly_credits)", userID).
		UpdateColumn("credits_used", gorm.Expr("credits_used + 1"))
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

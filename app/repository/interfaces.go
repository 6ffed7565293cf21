package repository

import (
	"time"

	"github.com/coachai-app/coachai/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	CreateWithSubscription(user *models.User, sub *models.Subscription) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByGoogleID(googleID string) (*models.User, error)
	GetWithSubscription(id uint) (*models.User, error)
	Update(user *models.User) error
	DecrementChatCredits(userID uint) error
	Delete(id uint) error
	Count() (int64, error)
}

// SubscriptionRepository defines the interface for subscription operations
type SubscriptionRepository interface {
	Create(sub *models.Subscription) error
	GetByUserID(userID uint) (*models.Subscription, error)
	GetByStripeCustomerID(customerID string) (*models.Subscription, error)
	GetByStripeSubscriptionID(subscriptionID string) (*models.Subscription, error)
	Update(sub *models.Subscription) error
	UpdateFields(userID uint, fields map[string]interface{}) error
	// ConsumeCredit atomically increments CreditsUsed if quota remains
	// (or unconditionally on the unlimited sentinel). It reports whether
	// a credit was actually consumed.
	ConsumeCredit(userID uint) (bool, error)
}

// ChatSessionRepository defines the interface for chat session operations
type ChatSessionRepository interface {
	Create(session *models.ChatSession) error
	GetByID(id uint) (*models.ChatSession, error)
	GetByUUID(uuid string) (*models.ChatSession, error)
	GetWithMessages(uuid string) (*models.ChatSession, error)
	ListByUserID(userID uint) ([]SessionSummary, error)
	UpdateTitle(id uint, title string) error
	Touch(id uint, at time.Time) error
	Delete(id uint) error
	CountByUserID(userID uint) (int64, error)
}

// MessageRepository defines the interface for message operations
type MessageRepository interface {
	Create(message *models.Message) error
	ListBySessionID(sessionID uint) ([]models.Message, error)
	FirstUserMessage(sessionID uint) (*models.Message, error)
	CountBySessionID(sessionID uint) (int64, error)
	CountUserMessages(userID uint) (int64, error)
}

// WebhookEventRepository defines the interface for webhook dedup records
type WebhookEventRepository interface {
	// CreateIfNotExists inserts the event unless its Stripe event id is
	// already recorded. It reports whether the row was created.
	CreateIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkProcessed(id uint) error
	RecordFailure(id uint, processingError string) error
}

// SessionSummary is a chat session annotated for listings: most recent
// message preview and total message count.
type SessionSummary struct {
	Session      models.ChatSession
	LastMessage  string
	MessageCount int64
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Subscription SubscriptionRepository
	ChatSession  ChatSessionRepository
	Message      MessageRepository
	WebhookEvent WebhookEventRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Subscription: NewSubscriptionRepository(db),
		ChatSession:  NewChatSessionRepository(db),
		Message:      NewMessageRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
	}
}

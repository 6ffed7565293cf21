package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// DefaultChatCredits is the legacy flat credit balance granted at signup.
// Credit accounting has moved to Subscription.CreditsUsed; this counter is
// kept in sync as a fallback for users without a subscription row.
const DefaultChatCredits = 5

type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Email       string         `gorm:"uniqueIndex;type:varchar(200);not null" json:"email" validate:"required,email,min=5,max=200"`
	Name        string         `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	AvatarURL   string         `gorm:"type:varchar(255)" json:"avatar_url" validate:"max=255"`
	GoogleID    string         `gorm:"type:varchar(100);index" json:"-"`
	ChatCredits int            `gorm:"not null;default:5" json:"chat_credits"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	Subscription *Subscription `gorm:"constraint:OnDelete:CASCADE" json:"subscription,omitempty"`
	ChatSessions []ChatSession `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

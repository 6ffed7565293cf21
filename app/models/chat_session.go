package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSessionTitle is used until the first user message provides one.
const DefaultSessionTitle = "New conversation"

// ChatSession groups the messages of one conversation. UpdatedAt is bumped
// on every appended message and drives recency ordering in listings.
type ChatSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UUID      string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Title     string    `gorm:"type:varchar(100);not null;default:'New conversation'" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`

	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == "" {
		s.UUID = uuid.New().String()
	}
	if s.Title == "" {
		s.Title = DefaultSessionTitle
	}
	return nil
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MessageRoleUser      = "USER"
	MessageRoleAssistant = "ASSISTANT"
	MessageRoleSystem    = "SYSTEM"
)

// Message is one turn of a conversation. Rows are immutable once created
// and ordered by creation time. Metadata carries model name and token
// counts on assistant messages.
type Message struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ChatSessionID uint              `gorm:"not null;index" json:"chat_session_id"`
	Role          string            `gorm:"type:varchar(20);not null" json:"role"`
	Content       string            `gorm:"type:text;not null" json:"content"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
}

package repository

import (
	"github.com/coachai-app/coachai/app/models"
	"gorm.io/gorm"
)

// messageRepository implements the MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository instance
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create persists a new message
func (r *messageRepository) Create(message *models.Message) error {
	return r.db.Create(message).Error
}

// ListBySessionID returns the session's messages, oldest first
func (r *messageRepository) ListBySessionID(sessionID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("chat_session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	return messages, err
}

// FirstUserMessage returns the earliest USER-role message of a session
func (r *messageRepository) FirstUserMessage(sessionID uint) (*models.Message, error) {
	var message models.Message
	err := r.db.Where("chat_session_id = ? AND role = ?", sessionID, models.MessageRoleUser).
		Order("created_at ASC, id ASC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// CountBySessionID returns the number of messages in a session
func (r *messageRepository) CountBySessionID(sessionID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Where("chat_session_id = ?", sessionID).
		Count(&count).Error
	return count, err
}

// CountUserMessages counts USER-role messages across all of a user's sessions
func (r *messageRepository) CountUserMessages(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Message{}).
		Joins("JOIN chat_sessions ON chat_sessions.id = messages.chat_session_id").
		Where("chat_sessions.user_id = ? AND messages.role = ?", userID, models.MessageRoleUser).
		Count(&count).Error
	return count, err
}

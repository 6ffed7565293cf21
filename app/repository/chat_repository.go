package repository

import (
	"errors"
	"time"

	"github.com/coachai-app/coachai/app/models"
	"gorm.io/gorm"
)

// chatSessionRepository implements the ChatSessionRepository interface
type chatSessionRepository struct {
	db *gorm.DB
}

// NewChatSessionRepository creates a new chat session repository instance
func NewChatSessionRepository(db *gorm.DB) ChatSessionRepository {
	return &chatSessionRepository{db: db}
}

// Create creates a new chat session
func (r *chatSessionRepository) Create(session *models.ChatSession) error {
	return r.db.Create(session).Error
}

// GetByID retrieves a session by its numeric ID
func (r *chatSessionRepository) GetByID(id uint) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetByUUID retrieves a session by its public UUID
func (r *chatSessionRepository) GetByUUID(uuid string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Where("uuid = ?", uuid).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetWithMessages retrieves a session with its full ordered message history
func (r *chatSessionRepository) GetWithMessages(uuid string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	}).Where("uuid = ?", uuid).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByUserID returns the user's sessions, most recently updated first,
// each annotated with its latest message and total message count.
func (r *chatSessionRepository) ListByUserID(userID uint) ([]SessionSummary, error) {
	var sessions []models.ChatSession
	if err := r.db.Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&sessions).Error; err != nil {
		return nil, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		var last models.Message
		lastContent := ""
		err := r.db.Where("chat_session_id = ?", session.ID).
			Order("created_at DESC, id DESC").
			First(&last).Error
		if err == nil {
			lastContent = last.Content
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		var count int64
		if err := r.db.Model(&models.Message{}).
			Where("chat_session_id = ?", session.ID).
			Count(&count).Error; err != nil {
			return nil, err
		}

		summaries = append(summaries, SessionSummary{
			Session:      session,
			LastMessage:  lastContent,
			MessageCount: count,
		})
	}
	return summaries, nil
}

// UpdateTitle sets a session title
func (r *chatSessionRepository) UpdateTitle(id uint, title string) error {
	return r.db.Model(&models.ChatSession{}).
		Where("id = ?", id).
		Update("title", title).Error
}

// Touch bumps the session's UpdatedAt so it surfaces first in listings
func (r *chatSessionRepository) Touch(id uint, at time.Time) error {
	return r.db.Model(&models.ChatSession{}).
		Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}

// Delete removes a session and, via the FK constraint, its messages
func (r *chatSessionRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_session_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.ChatSession{}, id).Error
	})
}

// CountByUserID returns the number of sessions owned by the user
func (r *chatSessionRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.ChatSession{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

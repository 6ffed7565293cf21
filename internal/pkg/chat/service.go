package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/app/repository"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrEmptyMessage    = errors.New("message must not be empty")
	ErrNoCompleter     = errors.New("completion backend not configured")
	ErrNoCredits       = errors.New("no chat credits remaining")
	ErrSessionNotFound = errors.New("chat session not found")
	ErrNotSessionOwner = errors.New("chat session belongs to another user")
	ErrTitleRequired   = errors.New("title must not be empty")
)

// titleMaxLen is the truncation point for auto-generated session titles.
const titleMaxLen = 50

// previewMaxLen caps the last-message preview in session listings.
const previewMaxLen = 100

// CreditKeeper is the slice of the account service the chat flow needs.
type CreditKeeper interface {
	HasCredits(ctx context.Context, userID uint) (bool, error)
	DecrementCredits(ctx context.Context, userID uint) error
	RemainingCredits(ctx context.Context, userID uint) (int, error)
}

// SendResult is the outcome of one send: both persisted messages and the
// recomputed credit balance.
type SendResult struct {
	SessionUUID      string
	UserMessage      *models.Message
	AssistantMessage *models.Message
	RemainingCredits int
}

// SessionListItem is a session as shown in the sidebar listing.
type SessionListItem struct {
	UUID         string    `json:"uuid"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"lastMessage"`
	MessageCount int64     `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Service orchestrates conversations: session CRUD, history assembly,
// completion calls and credit consumption.
type Service struct {
	sessions  repository.ChatSessionRepository
	messages  repository.MessageRepository
	credits   CreditKeeper
	completer Completer
	now       func() time.Time
}

// NewService creates a chat service from injected collaborators.
func NewService(
	sessions repository.ChatSessionRepository,
	messages repository.MessageRepository,
	credits CreditKeeper,
	completer Completer,
) *Service {
	return &Service{
		sessions:  sessions,
		messages:  messages,
		credits:   credits,
		completer: completer,
		now:       time.Now,
	}
}

// WithClock overrides the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SendMessage runs the full send flow described by the API: credit gate,
// session resolution, history with system prompt, completion, persistence,
// credit decrement and auto-titling on the first exchange.
func (s *Service) SendMessage(ctx context.Context, userID uint, sessionUUID, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.completer == nil {
		return nil, ErrNoCompleter
	}

	ok, err := s.credits.HasCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCredits
	}

	session, err := s.resolveSession(userID, sessionUUID)
	if err != nil {
		return nil, err
	}

	userMessage := &models.Message{
		ChatSessionID: session.ID,
		Role:          models.MessageRoleUser,
		Content:       text,
	}
	if err := s.appendMessage(session.ID, userMessage); err != nil {
		return nil, err
	}

	history, err := s.promptHistory(session.ID)
	if err != nil {
		return nil, err
	}

	completion, err := s.completer.Complete(ctx, history)
	if err != nil {
		return nil, err
	}

	assistantMessage := s.assistantMessageFrom(session.ID, completion)
	if err := s.appendMessage(session.ID, assistantMessage); err != nil {
		return nil, err
	}

	if err := s.credits.DecrementCredits(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.autoTitle(session); err != nil {
		// Titling is cosmetic; the send already succeeded.
		log.WithError(err).WithField("session", session.UUID).Warn("auto-title failed")
	}

	remaining, err := s.credits.RemainingCredits(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &SendResult{
		SessionUUID:      session.UUID,
		UserMessage:      userMessage,
		AssistantMessage: assistantMessage,
		RemainingCredits: remaining,
	}, nil
}

// CreateSession explicitly starts a new conversation.
func (s *Service) CreateSession(ctx context.Context, userID uint, title string) (*models.ChatSession, error) {
	_ = ctx
	session := &models.ChatSession{
		UserID: userID,
		Title:  strings.TrimSpace(title),
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

// ListSessions returns the user's conversations, most recent activity
// first, with a preview of the latest message.
func (s *Service) ListSessions(ctx context.Context, userID uint) ([]SessionListItem, error) {
	_ = ctx
	summaries, err := s.sessions.ListByUserID(userID)
	if err != nil {
		return nil, err
	}
	items := make([]SessionListItem, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, SessionListItem{
			UUID:         summary.Session.UUID,
			Title:        summary.Session.Title,
			LastMessage:  truncate(summary.LastMessage, previewMaxLen),
			MessageCount: summary.MessageCount,
			CreatedAt:    summary.Session.CreatedAt,
			UpdatedAt:    summary.Session.UpdatedAt,
		})
	}
	return items, nil
}

// GetSession returns a session with its full ordered history, enforcing
// ownership: a foreign session is a distinct authorization failure, not a
// not-found.
func (s *Service) GetSession(ctx context.Context, userID uint, sessionUUID string) (*models.ChatSession, error) {
	_ = ctx
	session, err := s.sessions.GetWithMessages(sessionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

// UpdateTitle renames a session. No side effects on credits.
func (s *Service) UpdateTitle(ctx context.Context, userID uint, sessionUUID, title string) (*models.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	session, err := s.ownedSession(userID, sessionUUID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.UpdateTitle(session.ID, title); err != nil {
		return nil, err
	}
	session.Title = title
	return session, nil
}

// DeleteSession removes a session and its messages.
func (s *Service) DeleteSession(ctx context.Context, userID uint, sessionUUID string) error {
	session, err := s.ownedSession(userID, sessionUUID)
	if err != nil {
		return err
	}
	return s.sessions.Delete(session.ID)
}

func (s *Service) resolveSession(userID uint, sessionUUID string) (*models.ChatSession, error) {
	if sessionUUID == "" {
		session := &models.ChatSession{UserID: userID}
		if err := s.sessions.Create(session); err != nil {
			return nil, err
		}
		return session, nil
	}
	return s.ownedSession(userID, sessionUUID)
}

func (s *Service) ownedSession(userID uint, sessionUUID string) (*models.ChatSession, error) {
	session, err := s.sessions.GetByUUID(sessionUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if session.UserID != userID {
		return nil, ErrNotSessionOwner
	}
	return session, nil
}

// appendMessage persists a message and bumps the session's recency stamp.
func (s *Service) appendMessage(sessionID uint, message *models.Message) error {
	if err := s.messages.Create(message); err != nil {
		return err
	}
	return s.sessions.Touch(sessionID, s.now())
}

// promptHistory builds the ordered conversation prefixed with the fixed
// system instruction, oldest message first.
func (s *Service) promptHistory(sessionID uint) ([]PromptMessage, error) {
	messages, err := s.messages.ListBySessionID(sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]PromptMessage, 0, len(messages)+1)
	history = append(history, PromptMessage{Role: "system", Content: SystemPrompt})
	for _, msg := range messages {
		history = append(history, PromptMessage{
			Role:    strings.ToLower(msg.Role),
			Content: msg.Content,
		})
	}
	return history, nil
}

func (s *Service) assistantMessageFrom(sessionID uint, completion *Completion) *models.Message {
	content := completion.Content
	if strings.TrimSpace(content) == "" {
		content = FallbackReply
	}
	return &models.Message{
		ChatSessionID: sessionID,
		Role:          models.MessageRoleAssistant,
		Content:       content,
		Metadata: datatypes.JSONMap{
			"model": completion.Model,
			"tokens": map[string]interface{}{
				"prompt":     completion.PromptTokens,
				"completion": completion.CompletionTokens,
				"total":      completion.TotalTokens,
			},
		},
	}
}

// autoTitle names the session after its first user message once the first
// exchange is complete.
func (s *Service) autoTitle(session *models.ChatSession) error {
	count, err := s.messages.CountBySessionID(session.ID)
	if err != nil {
		return err
	}
	if count > 2 {
		return nil
	}
	first, err := s.messages.FirstUserMessage(session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	title := TitleFromMessage(first.Content)
	if err := s.sessions.UpdateTitle(session.ID, title); err != nil {
		return err
	}
	session.Title = title
	return nil
}

// TitleFromMessage derives a session title from a first message: the first
// 50 characters, with an ellipsis when truncated.
func TitleFromMessage(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= titleMaxLen {
		return content
	}
	return string(runes[:titleMaxLen]) + "..."
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

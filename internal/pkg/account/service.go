package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coachai-app/coachai/app/models"
	"github.com/coachai-app/coachai/app/repository"
	"github.com/coachai-app/coachai/internal/pkg/entitlements"
	"gorm.io/gorm"
)

var (
	ErrEmailRequired = errors.New("email is required")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUserNotFound  = errors.New("user not found")
)

// Stats aggregates a user's usage for the dashboard.
type Stats struct {
	TotalChats       int64  `json:"totalChats"`
	TotalMessages    int64  `json:"totalMessages"`
	RemainingCredits int    `json:"remainingCredits"`
	Plan             string `json:"plan"`
	Status           string `json:"status"`
}

// Service owns user accounts and their credit bookkeeping.
type Service struct {
	users    repository.UserRepository
	subs     repository.SubscriptionRepository
	sessions repository.ChatSessionRepository
	messages repository.MessageRepository
	now      func() time.Time
}

// NewService creates an account service from injected repositories.
func NewService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	sessions repository.ChatSessionRepository,
	messages repository.MessageRepository,
) *Service {
	return &Service{
		users:    users,
		subs:     subs,
		sessions: sessions,
		messages: messages,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Tests use this to pin trial windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateUser creates a user together with its FREE/TRIAL subscription:
// 5 credits and a 3-day trial window starting now, in one transaction.
func (s *Service) CreateUser(ctx context.Context, email, name, avatarURL, googleID string) (*models.User, error) {
	_ = ctx
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	if _, err := s.users.GetByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	trialStart := s.now()
	trialEnd := trialStart.Add(entitlements.TrialDuration)

	user := &models.User{
		Email:       email,
		Name:        strings.TrimSpace(name),
		AvatarURL:   strings.TrimSpace(avatarURL),
		GoogleID:    strings.TrimSpace(googleID),
		ChatCredits: models.DefaultChatCredits,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}

	sub := &models.Subscription{
		Plan:           string(entitlements.PlanFree),
		Status:         models.SubscriptionStatusTrial,
		MonthlyCredits: entitlements.MonthlyCredits(entitlements.PlanFree),
		TrialStartDate: &trialStart,
		TrialEndDate:   &trialEnd,
	}
	if err := s.users.CreateWithSubscription(user, sub); err != nil {
		return nil, err
	}
	return user, nil
}

// GetByID returns the user with its subscription preloaded.
func (s *Service) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	_ = ctx
	user, err := s.users.GetWithSubscription(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetByEmail resolves an email to an account.
func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	_ = ctx
	user, err := s.users.GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetByGoogleID resolves a Google OAuth id to an account.
func (s *Service) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	_ = ctx
	user, err := s.users.GetByGoogleID(googleID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// LinkGoogleAccount persists a Google identity on an existing user, used
// when someone signs in with Google against an account created earlier.
func (s *Service) LinkGoogleAccount(ctx context.Context, user *models.User) error {
	_ = ctx
	return s.users.Update(user)
}

// HasCredits reports whether the user may send another message. PREMIUM is
// always allowed; otherwise quota minus consumption must be positive. Users
// without a subscription row fall back to the legacy flat counter.
func (s *Service) HasCredits(ctx context.Context, userID uint) (bool, error) {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user, uerr := s.users.GetByID(userID)
			if uerr != nil {
				if errors.Is(uerr, gorm.ErrRecordNotFound) {
					return false, ErrUserNotFound
				}
				return false, uerr
			}
			return user.ChatCredits > 0, nil
		}
		return false, err
	}

	if entitlements.Plan(sub.Plan) == entitlements.PlanPremium {
		return true, nil
	}
	return sub.RemainingCredits() > 0, nil
}

// DecrementCredits consumes one credit: a no-op for PREMIUM, otherwise a
// conditional atomic increment of CreditsUsed plus a decrement of the
// legacy counter. Safe under concurrent sends from the same user.
func (s *Service) DecrementCredits(ctx context.Context, userID uint) error {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if sub != nil && entitlements.Plan(sub.Plan) == entitlements.PlanPremium {
		return nil
	}
	if sub != nil {
		if _, err := s.subs.ConsumeCredit(userID); err != nil {
			return err
		}
	}
	return s.users.DecrementChatCredits(userID)
}

// RemainingCredits computes the current balance: the unlimited sentinel for
// PREMIUM, quota minus consumption otherwise, and the legacy counter when
// no subscription row exists.
func (s *Service) RemainingCredits(ctx context.Context, userID uint) (int, error) {
	_ = ctx
	sub, err := s.subs.GetByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user, uerr := s.users.GetByID(userID)
			if uerr != nil {
				return 0, uerr
			}
			return user.ChatCredits, nil
		}
		return 0, err
	}
	if entitlements.Plan(sub.Plan) == entitlements.PlanPremium {
		return entitlements.UnlimitedCredits, nil
	}
	return sub.RemainingCredits(), nil
}

// GetStats aggregates session count, user-authored message count, remaining
// credits, plan and status. Read-only; slight staleness is acceptable.
func (s *Service) GetStats(ctx context.Context, userID uint) (*Stats, error) {
	if _, err := s.users.GetByID(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	totalChats, err := s.sessions.CountByUserID(userID)
	if err != nil {
		return nil, err
	}
	totalMessages, err := s.messages.CountUserMessages(userID)
	if err != nil {
		return nil, err
	}
	remaining, err := s.RemainingCredits(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan := string(entitlements.PlanFree)
	status := models.SubscriptionStatusTrial
	if sub, err := s.subs.GetByUserID(userID); err == nil {
		plan = sub.Plan
		status = sub.Status
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return &Stats{
		TotalChats:       totalChats,
		TotalMessages:    totalMessages,
		RemainingCredits: remaining,
		Plan:             plan,
		Status:           status,
	}, nil
}

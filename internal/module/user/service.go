package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/aditus/server/internal/shared/errors"
)

// CacheInvalidator clears cached results for a user. Profile updates
// invalidate personalization results derived from the old profile.
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID uuid.UUID) error
}

// Service implements account operations.
type Service struct {
	repo        Repository
	tokens      *TokenManager
	invalidator CacheInvalidator
	logger      *zap.Logger
}

// NewService creates a new user service.
func NewService(repo Repository, tokens *TokenManager, invalidator CacheInvalidator, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		tokens:      tokens,
		invalidator: invalidator,
		logger:      logger,
	}
}

// Register creates a new account and returns it with an access token.
func (s *Service) Register(ctx context.Context, email, password, fullName string) (*User, string, error) {
	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, "", apperrors.Conflict("email already registered")
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, "", fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, "", err
	}

	token, err := s.tokens.IssueToken(u.ID, u.Email)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID.String()))
	return u, token, nil
}

// Login authenticates a user and returns an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", apperrors.Unauthorized("invalid credentials")
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperrors.Unauthorized("invalid credentials")
	}

	token, err := s.tokens.IssueToken(u.ID, u.Email)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// GetUser returns a user by ID.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

// GetUserEmail returns the email address for a user ID.
func (s *Service) GetUserEmail(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// GetProfile returns the user's master profile.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*MasterProfile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// UpdateProfile stores the user's master profile and clears cached
// personalization results derived from the previous version.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, content string) (*MasterProfile, error) {
	profile := &MasterProfile{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		UpdatedAt: time.Now(),
	}
	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		if err := s.invalidator.InvalidateUser(ctx, userID); err != nil {
			s.logger.Warn("failed to invalidate user cache", zap.Error(err),
				zap.String("user_id", userID.String()))
		}
	}
	return profile, nil
}

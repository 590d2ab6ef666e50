// Package auth issues accounts and tokens for marketplace users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/repository"
)

var (
	// ErrEmailInUse is returned when attempting to register duplicate email.
	ErrEmailInUse = fmt.Errorf("auth: email already registered: %w", apperr.ErrValidation)
	// ErrInvalidCredentials represents login failure.
	ErrInvalidCredentials = fmt.Errorf("auth: invalid credentials: %w", apperr.ErrAuth)
)

// CredentialRepository stores login records.
type CredentialRepository interface {
	Create(ctx context.Context, c models.Credential) error
	GetByEmail(ctx context.Context, email string) (models.Credential, error)
}

// UserRepository stores user documents.
type UserRepository interface {
	Create(ctx context.Context, u models.User) error
	Get(ctx context.Context, id string) (models.User, error)
	AddRole(ctx context.Context, id string, role models.Role) (models.User, error)
}

// Service contains registration and login logic.
type Service struct {
	credentials CredentialRepository
	users       UserRepository
	hasher      Hasher
	tokenizer   *TokenService
	logger      *zap.Logger
	now         func() time.Time
	newID       func() string
}

// NewService builds Service.
func NewService(credentials CredentialRepository, users UserRepository, hasher Hasher, tokenizer *TokenService, logger *zap.Logger) *Service {
	return &Service{
		credentials: credentials,
		users:       users,
		hasher:      hasher,
		tokenizer:   tokenizer,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Session is the result of a signup or login.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Signup registers a driver account with an empty balance.
func (s *Service) Signup(ctx context.Context, email, password, name string) (Session, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, apperr.Validation("a valid email is required")
	}
	if len(password) < MinPasswordLength {
		return Session{}, apperr.Validationf("password must be at least %d characters", MinPasswordLength)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = models.DefaultUserName
	}

	if _, err := s.credentials.GetByEmail(ctx, email); err == nil {
		return Session{}, apperr.New(ErrEmailInUse, "email already registered")
	} else if !errors.Is(err, repository.ErrCredentialNotFound) {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return Session{}, err
	}

	now := s.now().UTC()
	user := models.User{
		ID:        s.newID(),
		Email:     email,
		Name:      name,
		Roles:     []models.Role{models.RoleDriver},
		CreatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return Session{}, err
	}
	if err := s.credentials.Create(ctx, models.Credential{
		Email:        email,
		UserID:       user.ID,
		PasswordHash: hash,
		CreatedAt:    now,
	}); err != nil {
		return Session{}, err
	}

	token, err := s.tokenizer.GenerateToken(user.ID, user.Email)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("user signed up", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return Session{Token: token, User: user}, nil
}

// Login authenticates a user and produces a JWT.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, apperr.New(ErrInvalidCredentials, "invalid credentials")
	}

	cred, err := s.credentials.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return Session{}, apperr.New(ErrInvalidCredentials, "invalid credentials")
		}
		return Session{}, err
	}
	if err := s.hasher.Compare(cred.PasswordHash, password); err != nil {
		return Session{}, apperr.New(ErrInvalidCredentials, "invalid credentials")
	}

	user, err := s.users.Get(ctx, cred.UserID)
	if err != nil {
		return Session{}, err
	}
	token, err := s.tokenizer.GenerateToken(user.ID, user.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, User: user}, nil
}

// Me returns the acting user.
func (s *Service) Me(ctx context.Context, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, apperr.Unauthenticated("sign in required")
	}
	return s.users.Get(ctx, userID)
}

// BecomeHost grants the host role. Granting it twice is a no-op.
func (s *Service) BecomeHost(ctx context.Context, userID string) (models.User, error) {
	if userID == "" {
		return models.User{}, apperr.Unauthenticated("sign in required")
	}
	u, err := s.users.AddRole(ctx, userID, models.RoleHost)
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info("host role granted", zap.String("user_id", userID))
	return u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

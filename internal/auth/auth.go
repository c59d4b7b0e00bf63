package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alphabot-ai/topicboard/internal/model"
	"github.com/alphabot-ai/topicboard/internal/store"
)

var (
	ErrUserExists         = errors.New("User already exists")
	ErrInvalidCredentials = errors.New("Invalid credentials")
	ErrInvalidInput       = errors.New("invalid input")

	ErrNoToken       = errors.New("No token, authorization denied")
	ErrInvalidToken  = errors.New("Access Denied")
	ErrTokenNotValid = errors.New("Token is not valid")
)

// InputError matches ErrInvalidInput and carries the message shown to
// clients.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalidInput(msg string) error {
	return &InputError{Message: msg}
}

type Service struct {
	users  store.UserStore
	tokens *TokenService
	logger *slog.Logger
	now    func() time.Time
}

// Session is the result of a successful registration or login.
type Session struct {
	User      model.User
	Token     string
	ExpiresAt time.Time
}

func NewService(users store.UserStore, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: logger.With("component", "auth.Service"),
		now:    time.Now,
	}
}

func (s *Service) Tokens() *TokenService {
	return s.tokens
}

func (s *Service) Register(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return Session{}, invalidInput("name, email and password are required")
	}

	_, err := s.users.FindUserByEmail(ctx, email)
	if err == nil {
		return Session{}, ErrUserExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return Session{}, fmt.Errorf("find user: %w", err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	user := model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return Session{}, ErrUserExists
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(model.Identity{ID: user.ID, Name: user.Name})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Login returns ErrInvalidCredentials for both unknown emails and wrong
// passwords.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Debug("login failed", "reason", "unknown email")
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if !ComparePassword(user.PasswordHash, password) {
		s.logger.Debug("login failed", "reason", "password mismatch", "user_id", user.ID)
		return Session{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(model.Identity{ID: user.ID, Name: user.Name})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves the identity carried by a raw cookie value.
func (s *Service) Authenticate(token string) (model.Identity, error) {
	return s.tokens.Verify(token)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinPasswordLength = 8
	TokenTypeBearer   = "bearer"
)

// TokenIssuer signs access tokens for a user
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, time.Time, error)
}

// RegisterInput holds the fields for a new account
type RegisterInput struct {
	Username string
	Password string
	Email    string
}

// AccessToken is returned on a successful login
type AccessToken struct {
	Token     string
	TokenType string
	ExpiresAt time.Time
}

// AccountService handles registration and login
type AccountService struct {
	Users  domain.UserRepository
	Tokens TokenIssuer

	hashCost int
	now      func() time.Time
}

// NewAccountService creates a new AccountService instance
func NewAccountService(users domain.UserRepository, tokens TokenIssuer) *AccountService {
	return &AccountService{
		Users:    users,
		Tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

// Register creates a user with a bcrypt-hashed password
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)

	if username == "" {
		return nil, domain.InvalidRequestf("username cannot be empty")
	}
	if len(input.Password) < MinPasswordLength {
		return nil, domain.InvalidRequestf("password must be at least %d characters", MinPasswordLength)
	}
	if !strings.Contains(email, "@") {
		return nil, domain.InvalidRequestf("email must be a valid address")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		CreatedAt:    s.now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, domain.InvalidRequestf("%v", err)
	}

	if err := s.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and issues an access token.
// Unknown users and wrong passwords both fail with ErrInvalidCredentials.
func (s *AccountService) Login(ctx context.Context, username, password string) (*AccessToken, error) {
	user, err := s.Users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	token, expiresAt, err := s.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	return &AccessToken{
		Token:     token,
		TokenType: TokenTypeBearer,
		ExpiresAt: expiresAt,
	}, nil
}

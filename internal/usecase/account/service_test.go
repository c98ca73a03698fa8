package account

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/tradeflow-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock implementation of UserRepository for testing
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockTokenIssuer is a mock implementation of TokenIssuer for testing
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(userID uuid.UUID) (string, time.Time, error) {
	args := m.Called(userID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func newTestService() (*AccountService, *MockUserRepository, *MockTokenIssuer) {
	users := new(MockUserRepository)
	tokens := new(MockTokenIssuer)
	service := NewAccountService(users, tokens)
	service.hashCost = bcrypt.MinCost
	return service, users, tokens
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	service, users, _ := newTestService()

	users.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Username == "alice" && u.Email == "alice@example.com" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct horse")) == nil
	})).Return(nil)

	user, err := service.Register(ctx, RegisterInput{Username: " alice ", Password: "correct horse", Email: "alice@example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEqual(t, "correct horse", user.PasswordHash)
	users.AssertExpectations(t)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{name: "Empty username", input: RegisterInput{Username: "  ", Password: "long enough", Email: "a@b.c"}},
		{name: "Short password", input: RegisterInput{Username: "bob", Password: "short", Email: "a@b.c"}},
		{name: "Bad email", input: RegisterInput{Username: "bob", Password: "long enough", Email: "bob.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, users, _ := newTestService()
			_, err := service.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, domain.ErrInvalidRequest)
			users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ctx := context.Background()
	service, users, _ := newTestService()

	users.On("Create", ctx, mock.Anything).Return(domain.ErrUserExists)

	_, err := service.Register(ctx, RegisterInput{Username: "alice", Password: "long enough", Email: "a@b.c"})
	assert.ErrorIs(t, err, domain.ErrUserExists)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	service, users, tokens := newTestService()

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := &domain.User{ID: uuid.New(), Username: "alice", PasswordHash: string(hash), Email: "a@b.c"}
	expiresAt := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

	users.On("GetByUsername", ctx, "alice").Return(user, nil)
	users.On("GetByUsername", ctx, "mallory").Return(nil, domain.ErrUserNotFound)
	tokens.On("Issue", user.ID).Return("signed-token", expiresAt, nil).Once()

	t.Run("Valid credentials", func(t *testing.T) {
		token, err := service.Login(ctx, "alice", "correct horse")
		require.NoError(t, err)
		assert.Equal(t, "signed-token", token.Token)
		assert.Equal(t, TokenTypeBearer, token.TokenType)
		assert.Equal(t, expiresAt, token.ExpiresAt)
	})

	t.Run("Wrong password", func(t *testing.T) {
		_, err := service.Login(ctx, "alice", "battery staple")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("Unknown user", func(t *testing.T) {
		_, err := service.Login(ctx, "mallory", "whatever1")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	tokens.AssertExpectations(t)
}

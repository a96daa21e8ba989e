package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"notbroke/internal/cache"
	"notbroke/internal/storage"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 50
	maxEmailLength    = 100

	userCacheSize = 1024
	userCacheTTL  = 60 * time.Second
)

var (
	ErrInvalidUsername = fmt.Errorf("username must be %d to %d characters", minUsernameLength, maxUsernameLength)
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrAccountDisabled = errors.New("account is disabled")
)

// UserStore is the slice of the repository the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (storage.User, error)
	GetUserByUsername(ctx context.Context, username string) (storage.User, error)
	GetUserByID(ctx context.Context, id int64) (storage.User, error)
}

// Principal identifies the authenticated caller on a request.
type Principal struct {
	UserID   int64
	Username string
}

// Service registers accounts, verifies logins and resolves tokens to
// principals. Resolved users are cached briefly so each request does
// not hit the database.
type Service struct {
	store  UserStore
	tokens *TokenIssuer
	users  *cache.TTLCache[storage.User]
}

func NewService(store UserStore, tokens *TokenIssuer) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		users:  cache.New[storage.User](userCacheSize, userCacheTTL),
	}
}

// UserCache exposes the user cache for janitor registration.
func (s *Service) UserCache() *cache.TTLCache[storage.User] {
	return s.users
}

// Register creates an account and returns its principal.
func (s *Service) Register(ctx context.Context, username, email, password string) (Principal, error) {
	username = strings.TrimSpace(username)
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return Principal{}, ErrInvalidUsername
	}

	email = strings.TrimSpace(email)
	if email == "" || len(email) > maxEmailLength || !strings.Contains(email, "@") {
		return Principal{}, ErrInvalidEmail
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Principal{}, err
	}

	u, err := s.store.CreateUser(ctx, username, email, hash)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: u.ID, Username: u.Username}, nil
}

// Login verifies credentials and returns a signed session token.
// Unknown usernames and wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := CheckPassword(u.PasswordHash, password); err != nil {
		return "", err
	}
	if !u.IsActive {
		return "", ErrAccountDisabled
	}

	return s.tokens.Issue(u.ID, u.Username)
}

// Authenticate resolves a bearer token to a principal, confirming the
// account still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	userID, _, err := s.tokens.Verify(token)
	if err != nil {
		return Principal{}, err
	}

	key := strconv.FormatInt(userID, 10)
	if u, ok := s.users.Get(key); ok {
		return Principal{UserID: u.ID, Username: u.Username}, nil
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return Principal{}, ErrInvalidToken
	}
	if err != nil {
		return Principal{}, err
	}
	if !u.IsActive {
		return Principal{}, ErrInvalidToken
	}

	s.users.Set(key, u)
	return Principal{UserID: u.ID, Username: u.Username}, nil
}

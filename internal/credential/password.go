// ABOUTME: Username and password verifier backed by bcrypt
// ABOUTME: Unknown users still pay for a bcrypt comparison so timing doesn't leak usernames

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/homie/internal/store"
)

// dummyHash is compared against when the username doesn't exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// PasswordStore is the persistence a Password verifier needs.
type PasswordStore interface {
	GetUserByUsername(ctx context.Context, username string) (*store.User, error)
}

// Password verifies username and password pairs.
type Password struct {
	users     PasswordStore
	minLength int
	cost      int
	logger    *slog.Logger
}

// PasswordOption configures a Password verifier.
type PasswordOption func(*Password)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) PasswordOption {
	return func(p *Password) { p.cost = cost }
}

// NewPassword creates a password verifier. minLength below 1 means 8.
func NewPassword(users PasswordStore, minLength int, opts ...PasswordOption) *Password {
	if minLength < 1 {
		minLength = 8
	}
	p := &Password{
		users:     users,
		minLength: minLength,
		cost:      bcrypt.DefaultCost,
		logger:    slog.Default().With("component", "credential"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ Verifier = (*Password)(nil)

// Mode returns ModePassword.
func (p *Password) Mode() Mode {
	return ModePassword
}

// Register validates the request and hashes the password. It never returns
// a challenge.
func (p *Password) Register(ctx context.Context, req RegistrationRequest) (*Outcome[*NewIdentity], error) {
	username := strings.TrimSpace(req.Username)
	name := strings.TrimSpace(req.Name)

	if username == "" {
		return nil, invalid("username", "Username is required")
	}
	if name == "" {
		return nil, invalid("name", "Name is required")
	}
	if err := p.CheckPassword(req.Password); err != nil {
		return nil, err
	}

	_, err := p.users.GetUserByUsername(ctx, username)
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, store.ErrUserNotFound) {
		return nil, fmt.Errorf("checking username: %w", err)
	}

	hash, err := p.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	return done(&NewIdentity{
		User: &store.User{
			ID:           uuid.New().String(),
			Username:     username,
			Name:         name,
			PasswordHash: hash,
			CreatedAt:    time.Now().UTC(),
		},
	}), nil
}

// Login checks the password and returns the user id.
func (p *Password) Login(ctx context.Context, req LoginRequest) (*Outcome[string], error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, invalid("username", "Username and password are required")
	}

	user, err := p.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if user.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(req.Password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		p.logger.Debug("password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	return done(user.ID), nil
}

// CheckPassword enforces the length policy. The minimum counts characters;
// the maximum counts bytes because that is what bcrypt limits.
func (p *Password) CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < p.minLength {
		return invalid("password", fmt.Sprintf("Password must be at least %d characters", p.minLength))
	}
	if len(password) > maxPasswordBytes {
		return invalid("password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

// Hash returns the bcrypt hash of password.
func (p *Password) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

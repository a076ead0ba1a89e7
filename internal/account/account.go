// ABOUTME: Registration and login orchestration on top of a credential verifier
// ABOUTME: A new account gets its user, first inventory and session in one transaction

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/credential"
	"github.com/2389/homie/internal/store"
)

// DefaultInventoryName names the inventory created with a new account.
const DefaultInventoryName = "Inventory"

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = credential.ErrUsernameTaken

// ErrNoFields is returned by UpdateProfile when nothing was supplied.
var ErrNoFields = &ValidationError{Message: "No valid fields to update"}

// ValidationError reports bad input. Message is safe to show to users.
type ValidationError = credential.ValidationError

// Store is the persistence the orchestrator needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	UpdateUserName(ctx context.Context, id, name string) error
	CreateRegistration(ctx context.Context, reg *store.Registration) error
}

// Sessions mints and deletes login sessions.
type Sessions interface {
	New(userID string) (*store.Session, error)
	Create(ctx context.Context, userID string) (*store.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Inventories lists what a user can see.
type Inventories interface {
	Summaries(ctx context.Context, userID string) ([]access.Summary, error)
}

// DocumentCreator mints the document backing a new inventory.
type DocumentCreator interface {
	Create(ctx context.Context) (string, error)
}

// Registered is the result of Register. Exactly one of Challenge or User is set.
type Registered struct {
	Challenge   *credential.Challenge
	User        *store.User
	InventoryID string
	Session     *store.Session
}

// LoggedIn is the result of Login. Exactly one of Challenge or User is set.
type LoggedIn struct {
	Challenge   *credential.Challenge
	User        *store.User
	Inventories []access.Summary
	Session     *store.Session
}

// Service orchestrates account flows.
type Service struct {
	verifier      credential.Verifier
	store         Store
	sessions      Sessions
	inventories   Inventories
	docs          DocumentCreator
	inventoryName string
	logger        *slog.Logger
}

// Config wires a Service.
type Config struct {
	Verifier    credential.Verifier
	Store       Store
	Sessions    Sessions
	Inventories Inventories
	Documents   DocumentCreator
	// InventoryName names the first inventory; empty uses DefaultInventoryName.
	InventoryName string
}

// New creates an account service.
func New(cfg Config) *Service {
	name := strings.TrimSpace(cfg.InventoryName)
	if name == "" {
		name = DefaultInventoryName
	}
	return &Service{
		verifier:      cfg.Verifier,
		store:         cfg.Store,
		sessions:      cfg.Sessions,
		inventories:   cfg.Inventories,
		docs:          cfg.Documents,
		inventoryName: name,
		logger:        slog.Default().With("component", "account"),
	}
}

// Mode reports which credential verifier is active.
func (s *Service) Mode() credential.Mode {
	return s.verifier.Mode()
}

// Register runs one leg of registration. When the verifier produces an
// identity, the account is persisted with its first inventory and a session.
// The inventory document is created first, outside the transaction; if the
// transaction fails that document is left unreferenced.
func (s *Service) Register(ctx context.Context, req credential.RegistrationRequest) (*Registered, error) {
	outcome, err := s.verifier.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if outcome.Pending() {
		return &Registered{Challenge: outcome.Challenge}, nil
	}
	identity := outcome.Result

	docID, err := s.docs.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating inventory document: %w", err)
	}

	sess, err := s.sessions.New(identity.User.ID)
	if err != nil {
		return nil, err
	}

	inv := &store.Inventory{
		ID:        docID,
		Name:      s.inventoryName,
		OwnerID:   identity.User.ID,
		CreatedAt: identity.User.CreatedAt,
	}

	err = s.store.CreateRegistration(ctx, &store.Registration{
		User:       identity.User,
		Credential: identity.Credential,
		Inventory:  inv,
		Session:    sess,
	})
	if err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return nil, ErrUsernameTaken
		}
		if errors.Is(err, store.ErrCredentialExists) {
			s.logger.Warn("passkey already registered", "user_id", identity.User.ID)
			return nil, credential.ErrInvalidCredentials
		}
		return nil, err
	}

	s.logger.Info("registered user",
		"user_id", identity.User.ID,
		"mode", s.verifier.Mode(),
		"inventory_id", docID)

	return &Registered{User: identity.User, InventoryID: docID, Session: sess}, nil
}

// Login runs one leg of login. On success a new session is created and the
// user's inventories are returned.
func (s *Service) Login(ctx context.Context, req credential.LoginRequest) (*LoggedIn, error) {
	outcome, err := s.verifier.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	if outcome.Pending() {
		return &LoggedIn{Challenge: outcome.Challenge}, nil
	}

	user, err := s.store.GetUser(ctx, outcome.Result)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, credential.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	inventories, err := s.Me(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "mode", s.verifier.Mode())
	return &LoggedIn{User: user, Inventories: inventories, Session: sess}, nil
}

// Me lists the inventories a user owns or belongs to.
func (s *Service) Me(ctx context.Context, userID string) ([]access.Summary, error) {
	inventories, err := s.inventories.Summaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing inventories: %w", err)
	}
	return inventories, nil
}

// UpdateProfile changes the display name. A nil name is ErrNoFields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, name *string) (*store.User, error) {
	if name == nil {
		return nil, ErrNoFields
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, &ValidationError{Field: "name", Message: "Name cannot be empty"}
	}

	if err := s.store.UpdateUserName(ctx, userID, trimmed); err != nil {
		return nil, fmt.Errorf("updating name: %w", err)
	}
	return s.store.GetUser(ctx, userID)
}

// Logout deletes the session. It never fails from the caller's view.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if _, err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete session on logout", "error", err)
	}
}

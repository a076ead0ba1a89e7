// ABOUTME: Credential verifier abstraction shared by password and passkey login
// ABOUTME: A verifier either finishes a ceremony or hands back a challenge for a second leg

package credential

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/homie/internal/store"
)

// ErrInvalidCredentials covers every failed proof: unknown user, wrong
// password, unknown passkey, bad signature. Callers can't tell which.
var ErrInvalidCredentials = errors.New("invalid username or password")

// ErrChallengeExpired is returned when a ceremony token is unknown, already
// used, or past its deadline.
var ErrChallengeExpired = errors.New("challenge expired or not found")

// ErrUsernameTaken is returned when registering a username that exists.
var ErrUsernameTaken = errors.New("username already taken")

// ValidationError reports bad input. Message is safe to show to users.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Mode names a verifier implementation.
type Mode string

const (
	ModePassword Mode = "password"
	ModePasskey  Mode = "passkey"
)

// RegistrationRequest carries every field either mode may need. Password
// mode reads Username, Name, Password. Passkey mode reads Name to start and
// TempID plus Response to finish.
type RegistrationRequest struct {
	Username string
	Name     string
	Password string
	TempID   string
	Response json.RawMessage
}

// LoginRequest mirrors RegistrationRequest for login.
type LoginRequest struct {
	Username string
	Password string
	TempID   string
	Response json.RawMessage
}

// Challenge is the first leg of a two-phase ceremony. Options is sent to the
// browser as-is; TempID comes back with the signed response.
type Challenge struct {
	TempID  string `json:"tempId"`
	Options any    `json:"options"`
}

// NewIdentity is a verified, not yet persisted, account.
type NewIdentity struct {
	User       *store.User
	Credential *store.Credential // passkey mode only
}

// Outcome is either a Challenge or a verified Result.
type Outcome[T any] struct {
	Challenge *Challenge
	Result    T
}

// Pending reports whether the ceremony needs another round trip.
func (o *Outcome[T]) Pending() bool {
	return o.Challenge != nil
}

func pending[T any](c *Challenge) *Outcome[T] {
	return &Outcome[T]{Challenge: c}
}

func done[T any](v T) *Outcome[T] {
	return &Outcome[T]{Result: v}
}

// Verifier proves who a user is. Login results are user ids.
type Verifier interface {
	Mode() Mode
	Register(ctx context.Context, req RegistrationRequest) (*Outcome[*NewIdentity], error)
	Login(ctx context.Context, req LoginRequest) (*Outcome[string], error)
}

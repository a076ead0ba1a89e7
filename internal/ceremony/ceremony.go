// ABOUTME: Ephemeral store for in-flight two-phase ceremonies (passkey challenges)
// ABOUTME: Entries are single use: Take deletes on read, and expire after a fixed TTL

package ceremony

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound is returned when a token is unknown, already taken, or expired.
var ErrNotFound = errors.New("ceremony not found or expired")

// DefaultTTL bounds how long a started ceremony may wait for its second leg.
const DefaultTTL = 5 * time.Minute

// Kind says which ceremony an entry belongs to.
type Kind string

const (
	KindRegister Kind = "register"
	KindLogin    Kind = "login"
)

// Entry is the server-side half of a started ceremony.
type Entry struct {
	Kind      Kind      `json:"kind"`
	UserID    string    `json:"userId,omitempty"`
	Name      string    `json:"name,omitempty"`
	Data      []byte    `json:"data"` // serialized challenge state
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store holds ceremony entries under opaque tokens.
type Store interface {
	// Put stores the entry under a fresh token and sets its ExpiresAt.
	Put(ctx context.Context, entry *Entry) (string, error)
	// Take returns and removes the entry. A second Take of the same token
	// returns ErrNotFound.
	Take(ctx context.Context, token string) (*Entry, error)
	Close() error
}

// generateToken returns 32 random bytes as hex.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

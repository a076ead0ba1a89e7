// ABOUTME: Store interfaces, models, and sentinel errors for homie persistence
// ABOUTME: Users, passkey credentials, sessions, inventory access, and replicated documents

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("session not found")

// ErrCredentialNotFound is returned when no passkey matches a credential id.
var ErrCredentialNotFound = errors.New("credential not found")

// ErrCredentialExists is returned when a passkey id is already registered.
var ErrCredentialExists = errors.New("credential already exists")

// ErrInventoryNotFound is returned when an inventory access record doesn't exist.
var ErrInventoryNotFound = errors.New("inventory not found")

// ErrInventoryExists is returned when an access record already exists for a document.
var ErrInventoryExists = errors.New("inventory already exists")

// ErrDocumentNotFound is returned when a replicated document doesn't exist.
var ErrDocumentNotFound = errors.New("document not found")

// User is a person who can own and share inventories.
type User struct {
	ID           string
	Username     string // empty for passkey-only accounts
	Name         string
	PasswordHash string // bcrypt hash, empty for passkey-only accounts
	CreatedAt    time.Time
}

// Credential is a registered WebAuthn public key.
type Credential struct {
	ID              []byte // authenticator-generated credential id
	UserID          string
	PublicKey       []byte
	AttestationType string
	Transports      []string
	SignCount       uint32
	BackupEligible  bool
	BackupState     bool
	CreatedAt       time.Time
}

// Session is a server-side login session, looked up by its opaque id.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its deadline at now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.Before(now)
}

// Inventory is the access record for one replicated inventory document.
// The owner is never listed in MemberIDs.
type Inventory struct {
	ID        string // equals the document id
	Name      string
	OwnerID   string
	MemberIDs []string
	CreatedAt time.Time
}

// Member is a user id with its display name.
type Member struct {
	ID   string
	Name string
}

// InventoryMembers lists the sharing state of an inventory.
type InventoryMembers struct {
	OwnerID string
	Members []Member
}

// Document is a replicated document's server-side head.
type Document struct {
	ID        string
	HeadSeq   int64
	CreatedAt time.Time
}

// Change is one opaque, ordered update to a document.
type Change struct {
	DocID     string
	Seq       int64
	ActorID   string
	Payload   []byte
	CreatedAt time.Time
}

// Registration is everything a new account needs, written atomically.
type Registration struct {
	User       *User
	Credential *Credential // nil in password mode
	Inventory  *Inventory
	Session    *Session
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateUserName(ctx context.Context, id, name string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
}

// CredentialStore persists passkeys.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, id []byte) (*Credential, error)
	ListCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error)
	UpdateCredentialSignCount(ctx context.Context, id []byte, signCount uint32) error
}

// SessionStore persists login sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
	DeleteUserSessions(ctx context.Context, userID string) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// AccessStore persists inventory ownership and membership.
type AccessStore interface {
	CreateInventory(ctx context.Context, inv *Inventory) error
	GetInventory(ctx context.Context, id string) (*Inventory, error)
	ListInventoriesForUser(ctx context.Context, userID string) ([]*Inventory, error)
	ListInventories(ctx context.Context) ([]*Inventory, error)
	RenameInventory(ctx context.Context, id, name string) (bool, error)
	DeleteInventory(ctx context.Context, id string) (bool, error)
	AddMember(ctx context.Context, inventoryID, userID string) (bool, error)
	RemoveMember(ctx context.Context, inventoryID, userID string) (bool, error)
	ListMembers(ctx context.Context, inventoryID string) (*InventoryMembers, error)
	ListAvailableUsers(ctx context.Context, inventoryID, excludeUserID string) ([]Member, error)
}

// DocumentStore persists replicated documents as ordered change logs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	AppendChange(ctx context.Context, docID, actorID string, payload []byte) (*Change, error)
	ListChanges(ctx context.Context, docID string, afterSeq int64, limit int) ([]*Change, error)
}

// RegistrationStore writes a whole new account in one transaction.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, reg *Registration) error
}

// Store is the full persistence surface used by homie-server.
type Store interface {
	UserStore
	CredentialStore
	SessionStore
	AccessStore
	DocumentStore
	RegistrationStore
	Close() error
}

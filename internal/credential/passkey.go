// ABOUTME: WebAuthn passkey verifier using go-webauthn with discoverable credentials
// ABOUTME: Challenges live in a ceremony store between the start and finish legs

package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/2389/homie/internal/ceremony"
	"github.com/2389/homie/internal/store"
)

// PasskeyStore is the persistence a Passkeys verifier needs.
type PasskeyStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	GetCredential(ctx context.Context, id []byte) (*store.Credential, error)
	ListCredentialsByUser(ctx context.Context, userID string) ([]*store.Credential, error)
	UpdateCredentialSignCount(ctx context.Context, id []byte, signCount uint32) error
}

// PasskeyConfig configures the relying party.
type PasskeyConfig struct {
	BaseURL       string
	RPDisplayName string
	// StrictSignCount rejects logins whose signature counter did not advance.
	StrictSignCount bool
}

// Passkeys verifies WebAuthn registrations and assertions.
type Passkeys struct {
	webauthn   *webauthn.WebAuthn
	users      PasskeyStore
	ceremonies ceremony.Store
	strict     bool
	logger     *slog.Logger
}

var _ Verifier = (*Passkeys)(nil)

// NewPasskeys creates a passkey verifier. The relying party id and origins
// come from cfg.BaseURL.
func NewPasskeys(users PasskeyStore, ceremonies ceremony.Store, cfg PasskeyConfig) (*Passkeys, error) {
	rpID, rpOrigins := deriveWebAuthnConfig(cfg.BaseURL)

	displayName := cfg.RPDisplayName
	if displayName == "" {
		displayName = "homie"
	}

	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: displayName,
		RPID:          rpID,
		RPOrigins:     rpOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	return &Passkeys{
		webauthn:   w,
		users:      users,
		ceremonies: ceremonies,
		strict:     cfg.StrictSignCount,
		logger:     slog.Default().With("component", "credential"),
	}, nil
}

// Mode returns ModePasskey.
func (p *Passkeys) Mode() Mode {
	return ModePasskey
}

// Register starts a registration when TempID is empty, and finishes one
// otherwise.
func (p *Passkeys) Register(ctx context.Context, req RegistrationRequest) (*Outcome[*NewIdentity], error) {
	if req.TempID == "" {
		return p.beginRegistration(ctx, req)
	}
	return p.finishRegistration(ctx, req)
}

func (p *Passkeys) beginRegistration(ctx context.Context, req RegistrationRequest) (*Outcome[*NewIdentity], error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalid("name", "Name is required")
	}

	user := &webAuthnUser{user: &store.User{ID: uuid.New().String(), Name: name}}

	options, session, err := p.webauthn.BeginRegistration(user,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}

	token, err := p.putSession(ctx, ceremony.KindRegister, user.user.ID, name, session)
	if err != nil {
		return nil, err
	}

	return pending[*NewIdentity](&Challenge{TempID: token, Options: options}), nil
}

func (p *Passkeys) finishRegistration(ctx context.Context, req RegistrationRequest) (*Outcome[*NewIdentity], error) {
	entry, session, err := p.takeSession(ctx, req.TempID, ceremony.KindRegister)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		p.logger.Warn("failed to parse registration response", "error", err)
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	user := &store.User{ID: entry.UserID, Name: entry.Name, CreatedAt: now}

	cred, err := p.webauthn.CreateCredential(&webAuthnUser{user: user}, *session, parsed)
	if err != nil {
		p.logger.Warn("failed to verify registration", "error", err)
		return nil, ErrInvalidCredentials
	}

	transports := make([]string, len(cred.Transport))
	for i, t := range cred.Transport {
		transports[i] = string(t)
	}

	return done(&NewIdentity{
		User: user,
		Credential: &store.Credential{
			ID:              cred.ID,
			UserID:          user.ID,
			PublicKey:       cred.PublicKey,
			AttestationType: cred.AttestationType,
			Transports:      transports,
			SignCount:       cred.Authenticator.SignCount,
			BackupEligible:  cred.Flags.BackupEligible,
			BackupState:     cred.Flags.BackupState,
			CreatedAt:       now,
		},
	}), nil
}

// Login starts a discoverable login when TempID is empty, and finishes one
// otherwise. The result is the user id.
func (p *Passkeys) Login(ctx context.Context, req LoginRequest) (*Outcome[string], error) {
	if req.TempID == "" {
		return p.beginLogin(ctx)
	}
	return p.finishLogin(ctx, req)
}

func (p *Passkeys) beginLogin(ctx context.Context) (*Outcome[string], error) {
	options, session, err := p.webauthn.BeginDiscoverableLogin()
	if err != nil {
		return nil, fmt.Errorf("beginning login: %w", err)
	}

	token, err := p.putSession(ctx, ceremony.KindLogin, "", "", session)
	if err != nil {
		return nil, err
	}

	return pending[string](&Challenge{TempID: token, Options: options}), nil
}

func (p *Passkeys) finishLogin(ctx context.Context, req LoginRequest) (*Outcome[string], error) {
	_, session, err := p.takeSession(ctx, req.TempID, ceremony.KindLogin)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Response))
	if err != nil {
		p.logger.Warn("failed to parse login response", "error", err)
		return nil, ErrInvalidCredentials
	}

	stored, err := p.users.GetCredential(ctx, parsed.RawID)
	if err != nil {
		if errors.Is(err, store.ErrCredentialNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up credential: %w", err)
	}

	user, err := p.users.GetUser(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	creds, err := p.users.ListCredentialsByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	waUser := &webAuthnUser{user: user, creds: creds}

	cred, err := p.webauthn.ValidateDiscoverableLogin(makeCredentialFinder(waUser, user.ID), *session, parsed)
	if err != nil {
		p.logger.Warn("failed to validate login", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}

	if err := p.checkSignCount(user.ID, cred); err != nil {
		return nil, err
	}

	if err := p.users.UpdateCredentialSignCount(ctx, cred.ID, cred.Authenticator.SignCount); err != nil {
		return nil, fmt.Errorf("updating sign count: %w", err)
	}

	return done(user.ID), nil
}

// checkSignCount handles a counter that did not advance, which can mean a
// cloned authenticator. Authenticators that always report zero never warn.
func (p *Passkeys) checkSignCount(userID string, cred *webauthn.Credential) error {
	if !cred.Authenticator.CloneWarning {
		return nil
	}
	if p.strict {
		p.logger.Warn("rejecting passkey login: sign count regressed", "user_id", userID)
		return ErrInvalidCredentials
	}
	p.logger.Warn("passkey sign count regressed", "user_id", userID)
	return nil
}

func (p *Passkeys) putSession(ctx context.Context, kind ceremony.Kind, userID, name string, session *webauthn.SessionData) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encoding webauthn session: %w", err)
	}

	token, err := p.ceremonies.Put(ctx, &ceremony.Entry{
		Kind:   kind,
		UserID: userID,
		Name:   name,
		Data:   data,
	})
	if err != nil {
		return "", fmt.Errorf("storing challenge: %w", err)
	}
	return token, nil
}

func (p *Passkeys) takeSession(ctx context.Context, token string, kind ceremony.Kind) (*ceremony.Entry, *webauthn.SessionData, error) {
	entry, err := p.ceremonies.Take(ctx, token)
	if err != nil {
		if errors.Is(err, ceremony.ErrNotFound) {
			return nil, nil, ErrChallengeExpired
		}
		return nil, nil, fmt.Errorf("loading challenge: %w", err)
	}

	// A login token can't finish a registration and vice versa.
	if entry.Kind != kind {
		return nil, nil, ErrChallengeExpired
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(entry.Data, &session); err != nil {
		return nil, nil, fmt.Errorf("decoding webauthn session: %w", err)
	}
	return entry, &session, nil
}

// webAuthnUser wraps a store.User to implement webauthn.User.
type webAuthnUser struct {
	user  *store.User
	creds []*store.Credential
}

func (u *webAuthnUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *webAuthnUser) WebAuthnName() string {
	if u.user.Username != "" {
		return u.user.Username
	}
	return u.user.Name
}

func (u *webAuthnUser) WebAuthnDisplayName() string {
	return u.user.Name
}

func (u *webAuthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		transports := make([]protocol.AuthenticatorTransport, len(c.Transports))
		for j, t := range c.Transports {
			transports[j] = protocol.AuthenticatorTransport(t)
		}
		creds[i] = webauthn.Credential{
			ID:              c.ID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Transport:       transports,
			Flags: webauthn.CredentialFlags{
				BackupEligible: c.BackupEligible,
				BackupState:    c.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
	}
	return creds
}

// makeCredentialFinder resolves the user for a discoverable login and
// rejects assertions whose user handle names someone else.
func makeCredentialFinder(waUser *webAuthnUser, userID string) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != userID {
			return nil, errors.New("user handle mismatch")
		}
		return waUser, nil
	}
}

// deriveWebAuthnConfig extracts rpID and rpOrigins from a base URL.
// Returns localhost defaults if the URL is empty or invalid.
func deriveWebAuthnConfig(baseURL string) (rpID string, rpOrigins []string) {
	rpID = "localhost"
	rpOrigins = []string{"http://localhost", "https://localhost"}

	if baseURL == "" {
		return rpID, rpOrigins
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return rpID, rpOrigins
	}

	host := parsed.Hostname()
	if host == "" {
		return rpID, rpOrigins
	}

	origin := parsed.Scheme + "://" + parsed.Host
	rpID = host
	rpOrigins = []string{origin}
	if parsed.Scheme == "https" {
		rpOrigins = append(rpOrigins, "http://"+parsed.Host)
	} else {
		rpOrigins = append(rpOrigins, "https://"+parsed.Host)
	}
	return rpID, rpOrigins
}

// ABOUTME: HTTP auth gate resolving the session cookie to a principal
// ABOUTME: Refreshes the session on every authenticated request and clears stale cookies

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/homie/internal/store"
)

// Gate errors. Their messages are the response bodies.
var (
	ErrUnauthenticated = errors.New("Unauthorized")
	ErrSessionExpired  = errors.New("Session expired")
	ErrUserNotFound    = errors.New("User not found")
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "session"

// Sessions resolves and refreshes sessions.
type Sessions interface {
	Get(ctx context.Context, id string) (*store.Session, error)
	Refresh(ctx context.Context, id string) (*store.Session, error)
	TTL() time.Duration
}

// UserLookup fetches users by id.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name string
	// TrustProxy honours X-Forwarded-Proto when deciding the Secure flag.
	TrustProxy bool
}

// Gate guards HTTP endpoints with the session cookie.
type Gate struct {
	sessions Sessions
	users    UserLookup
	cookie   CookieConfig
	logger   *slog.Logger
}

// NewGate creates an auth gate.
func NewGate(sessions Sessions, users UserLookup, cookie CookieConfig) *Gate {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Gate{
		sessions: sessions,
		users:    users,
		cookie:   cookie,
		logger:   slog.Default().With("component", "auth"),
	}
}

// Require rejects requests without a live session with 401 and otherwise
// runs next with the principal in the request context.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := g.Resolve(w, r)
		if err != nil {
			g.writeFailure(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// Resolve authenticates r. On success the session deadline slides forward
// and the cookie is rewritten. A session or user that no longer exists
// clears the cookie. Errors other than the gate sentinels are internal.
func (g *Gate) Resolve(w http.ResponseWriter, r *http.Request) (*Principal, error) {
	id := g.cookieValue(r)
	if id == "" {
		return nil, ErrUnauthenticated
	}

	sess, err := g.sessions.Refresh(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			g.ClearCookie(w, r)
			return nil, ErrSessionExpired
		}
		return nil, err
	}

	user, err := g.users.GetUser(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			g.ClearCookie(w, r)
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	g.SetCookie(w, r, sess)
	return &Principal{Session: sess, User: user}, nil
}

// SetCookie writes the session cookie with a lifetime of the session TTL.
func (g *Gate) SetCookie(w http.ResponseWriter, r *http.Request, sess *store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie.Name,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(g.sessions.TTL() / time.Second),
		HttpOnly: true,
		Secure:   g.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie in the browser.
func (g *Gate) ClearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID returns the raw session cookie value, or "".
func (g *Gate) SessionID(r *http.Request) string {
	return g.cookieValue(r)
}

func (g *Gate) cookieValue(r *http.Request) string {
	c, err := r.Cookie(g.cookie.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (g *Gate) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return g.cookie.TrustProxy && r.Header.Get("X-Forwarded-Proto") == "https"
}

func (g *Gate) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrSessionExpired), errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		g.logger.Error("session lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

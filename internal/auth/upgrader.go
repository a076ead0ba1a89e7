// ABOUTME: WebSocket auth gate: authenticates the handshake before upgrading
// ABOUTME: Rejections are raw HTTP status lines on the hijacked socket, never a partial upgrade

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/2389/homie/internal/store"
)

// SyncHandler owns an authenticated socket until it returns.
type SyncHandler interface {
	ServeConn(ctx context.Context, conn *websocket.Conn, p *Principal)
}

// UpgraderConfig configures the WebSocket gate.
type UpgraderConfig struct {
	// Path is the only path that may be upgraded.
	Path string
	// CookieName is the session cookie name.
	CookieName string
	// OriginPatterns are host patterns accepted in the Origin header.
	OriginPatterns []string
}

// Upgrader intercepts WebSocket handshakes ahead of normal routing.
type Upgrader struct {
	sessions Sessions
	users    UserLookup
	handler  SyncHandler
	cfg      UpgraderConfig
	logger   *slog.Logger
}

// NewUpgrader creates the WebSocket gate.
func NewUpgrader(sessions Sessions, users UserLookup, handler SyncHandler, cfg UpgraderConfig) *Upgrader {
	if cfg.Path == "" {
		cfg.Path = "/sync"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Upgrader{
		sessions: sessions,
		users:    users,
		handler:  handler,
		cfg:      cfg,
		logger:   slog.Default().With("component", "ws-gate"),
	}
}

// Wrap routes WebSocket handshakes to the gate and everything else to next.
func (u *Upgrader) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		u.ServeHTTP(w, r)
	})
}

// ServeHTTP handles a single handshake.
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != u.cfg.Path {
		reject(w, http.StatusNotFound)
		return
	}

	p, err := u.authenticate(r)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			u.logger.Debug("rejected websocket handshake", "remote", r.RemoteAddr)
			reject(w, http.StatusUnauthorized)
			return
		}
		u.logger.Error("websocket authentication failed", "error", err)
		reject(w, http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: u.cfg.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the failure response.
		u.logger.Warn("websocket accept failed", "error", err, "user_id", p.UserID())
		return
	}

	u.logger.Info("websocket connected", "user_id", p.UserID())
	u.handler.ServeConn(r.Context(), conn, p)
	u.logger.Info("websocket disconnected", "user_id", p.UserID())
}

// authenticate resolves the session without refreshing it. A missing cookie,
// session or user all report ErrUnauthenticated.
func (u *Upgrader) authenticate(r *http.Request) (*Principal, error) {
	c, err := r.Cookie(u.cfg.CookieName)
	if err != nil || c.Value == "" {
		return nil, ErrUnauthenticated
	}

	sess, err := u.sessions.Get(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	user, err := u.users.GetUser(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	return &Principal{Session: sess, User: user}, nil
}

func isWebSocketUpgrade(r *http.Request) bool {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "upgrade") {
				return true
			}
		}
	}
	return false
}

// reject writes a bare status line on the raw connection and closes it.
// Falls back to a normal response when the connection cannot be hijacked.
func reject(w http.ResponseWriter, status int) {
	rc := http.NewResponseController(w)
	conn, buf, err := rc.Hijack()
	if err != nil {
		w.Header().Set("Connection", "close")
		w.WriteHeader(status)
		return
	}
	defer conn.Close()

	_, _ = fmt.Fprintf(buf, "HTTP/1.1 %d %s\r\nConnection: close\r\n\r\n", status, http.StatusText(status))
	_ = buf.Flush()
}

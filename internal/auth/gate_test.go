// ABOUTME: Tests for the HTTP auth gate
// ABOUTME: Uses a real SQLite store and session manager with an injected clock

package auth

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/homie/internal/session"
	"github.com/2389/homie/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type authFixture struct {
	store    *store.SQLiteStore
	sessions *session.Manager
	clock    *testClock
	user     *store.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	user := &store.User{ID: "u-alice", Username: "alice", Name: "Alice", CreatedAt: time.Now()}
	require.NoError(t, s.CreateUser(context.Background(), user))

	clock := &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	return &authFixture{
		store:    s,
		sessions: session.NewManager(s, time.Hour, session.WithClock(clock.Now)),
		clock:    clock,
		user:     user,
	}
}

func (f *authFixture) login(t *testing.T) *store.Session {
	t.Helper()
	sess, err := f.sessions.Create(context.Background(), f.user.ID)
	require.NoError(t, err)
	return sess
}

// missingUsers reports every user as gone.
type missingUsers struct{}

func (missingUsers) GetUser(context.Context, string) (*store.User, error) {
	return nil, store.ErrUserNotFound
}

// brokenUsers fails every lookup.
type brokenUsers struct{}

func (brokenUsers) GetUser(context.Context, string) (*store.User, error) {
	return nil, errors.New("disk on fire")
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body["error"]
}

func protected(got **Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestGate_MissingCookie(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, f.store, CookieConfig{})

	var got *Principal
	rec := httptest.NewRecorder()
	gate.Require(protected(&got)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/inventories", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", errorBody(t, rec))
	assert.Nil(t, got)
	assert.Nil(t, findCookie(rec, DefaultCookieName), "nothing to clear")
}

func TestGate_ValidSessionRefreshes(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, f.store, CookieConfig{})
	sess := f.login(t)

	f.clock.Advance(40 * time.Minute)

	var got *Principal
	req := httptest.NewRequest(http.MethodGet, "/api/inventories", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sess.ID})
	rec := httptest.NewRecorder()
	gate.Require(protected(&got)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u-alice", got.UserID())
	assert.Equal(t, "Alice", got.User.Name)
	assert.True(t, f.clock.Now().Add(time.Hour).Equal(got.Session.ExpiresAt))

	c := findCookie(rec, "session")
	require.NotNil(t, c)
	assert.Equal(t, sess.ID, c.Value)
	assert.Equal(t, 3600, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)

	// The refresh carried it past the original deadline.
	f.clock.Advance(40 * time.Minute)
	_, err := f.sessions.Get(context.Background(), sess.ID)
	assert.NoError(t, err)
}

func TestGate_ExpiredSessionClearsCookie(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, f.store, CookieConfig{})
	sess := f.login(t)

	f.clock.Advance(2 * time.Hour)

	var got *Principal
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sess.ID})
	rec := httptest.NewRecorder()
	gate.Require(protected(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Session expired", errorBody(t, rec))
	assert.Nil(t, got)

	c := findCookie(rec, "session")
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestGate_UnknownSession(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, f.store, CookieConfig{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "made-up"})
	rec := httptest.NewRecorder()
	var got *Principal
	gate.Require(protected(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Session expired", errorBody(t, rec))
}

func TestGate_UserGone(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, missingUsers{}, CookieConfig{})
	sess := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sess.ID})
	rec := httptest.NewRecorder()
	var got *Principal
	gate.Require(protected(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User not found", errorBody(t, rec))
	c := findCookie(rec, "session")
	require.NotNil(t, c)
	assert.Less(t, c.MaxAge, 0)
}

func TestGate_StoreFailureIsInternal(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, brokenUsers{}, CookieConfig{})
	sess := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sess.ID})
	rec := httptest.NewRecorder()
	var got *Principal
	gate.Require(protected(&got)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestGate_CustomCookieName(t *testing.T) {
	f := newAuthFixture(t)
	gate := NewGate(f.sessions, f.store, CookieConfig{Name: "homie_sid"})
	sess := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: sess.ID})
	rec := httptest.NewRecorder()
	var got *Principal
	gate.Require(protected(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "homie_sid", Value: sess.ID})
	rec = httptest.NewRecorder()
	gate.Require(protected(&got)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_SecureFlag(t *testing.T) {
	f := newAuthFixture(t)
	sess := f.login(t)

	tests := []struct {
		name       string
		trustProxy bool
		tls        bool
		forwarded  string
		want       bool
	}{
		{name: "plain http", want: false},
		{name: "direct tls", tls: true, want: true},
		{name: "untrusted forwarded proto", forwarded: "https", want: false},
		{name: "trusted forwarded proto", trustProxy: true, forwarded: "https", want: true},
		{name: "trusted forwarded http", trustProxy: true, forwarded: "http", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(f.sessions, f.store, CookieConfig{TrustProxy: tt.trustProxy})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-Proto", tt.forwarded)
			}
			rec := httptest.NewRecorder()
			gate.SetCookie(rec, req, sess)

			c := findCookie(rec, "session")
			require.NotNil(t, c)
			assert.Equal(t, tt.want, c.Secure)
		})
	}
}

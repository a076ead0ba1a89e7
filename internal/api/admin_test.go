// ABOUTME: Tests for the operator API behind bearer tokens
// ABOUTME: Tokens are minted with the same secret the router verifies with

package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (ts *testServer) operator(t *testing.T) *client {
	t.Helper()
	token, err := ts.tokens.Generate("ops", time.Hour)
	require.NoError(t, err)
	c := ts.client(t)
	c.http.Transport = bearerTransport{token: token}
	return c
}

type bearerTransport struct{ token string }

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(req)
}

func TestAdmin_RequiresToken(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.client(t)

	r := c.do(http.MethodGet, "/admin/api/users", nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "missing authorization header", r.errorMessage())

	r = c.do(http.MethodGet, "/admin/api/users", nil, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, r.status)
	assert.Equal(t, "invalid token", r.errorMessage())

	// A session cookie is not an operator credential.
	c.register("alice", "Alice")
	r = c.do(http.MethodGet, "/admin/api/users", nil)
	assert.Equal(t, http.StatusUnauthorized, r.status)
}

func TestAdmin_Listings(t *testing.T) {
	ts := newTestServer(t, nil)
	reg := ts.client(t).register("alice", "Alice")
	ops := ts.operator(t)

	r := ops.do(http.MethodGet, "/admin/api/users", nil)
	require.Equal(t, http.StatusOK, r.status)
	users := r.body["users"].([]any)
	require.Len(t, users, 1)
	u := users[0].(map[string]any)
	assert.Equal(t, reg.User.ID, u["id"])
	assert.Equal(t, "alice", u["username"])
	assert.Equal(t, true, u["hasPassword"])
	assert.NotContains(t, u, "passwordHash")

	r = ops.do(http.MethodGet, "/admin/api/inventories", nil)
	require.Equal(t, http.StatusOK, r.status)
	inventories := r.body["inventories"].([]any)
	require.Len(t, inventories, 1)
	assert.Equal(t, reg.InventoryID, inventories[0].(map[string]any)["id"])
}

func TestAdmin_RevokeAndSweep(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.client(t)
	reg := alice.register("alice", "Alice")
	other := ts.client(t)
	other.decode(http.MethodPost, "/auth/login", map[string]string{"username": "alice", "password": "password-alice"}, &meBody{})
	ops := ts.operator(t)

	r := ops.do(http.MethodDelete, "/admin/api/users/"+reg.User.ID+"/sessions", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.JSONEq(t, `{"revoked":2}`, string(r.raw))

	for _, c := range []*client{alice, other} {
		r = c.do(http.MethodGet, "/api/inventories", nil)
		assert.Equal(t, http.StatusUnauthorized, r.status)
	}

	bob := ts.client(t)
	bob.register("bob", "Bob")
	ts.clock.Advance(2 * time.Hour)

	r = ops.do(http.MethodPost, "/admin/api/sessions/sweep", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.JSONEq(t, `{"swept":1}`, string(r.raw))
}

func TestAdmin_AuditTrail(t *testing.T) {
	ts := newTestServer(t, nil)
	reg := ts.client(t).register("alice", "Alice")
	ops := ts.operator(t)

	r := ops.do(http.MethodGet, "/admin/api/audit", nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Empty(t, r.body["entries"])

	ops.do(http.MethodDelete, "/admin/api/users/"+reg.User.ID+"/sessions", nil)
	ts.clock.Advance(time.Minute)
	ops.do(http.MethodPost, "/admin/api/sessions/sweep", nil)

	r = ops.do(http.MethodGet, "/admin/api/audit", nil)
	require.Equal(t, http.StatusOK, r.status)
	entries := r.body["entries"].([]any)
	require.Len(t, entries, 2)

	actions := []string{}
	for _, e := range entries {
		entry := e.(map[string]any)
		assert.Equal(t, "ops", entry["actor"])
		actions = append(actions, entry["action"].(string))
	}
	assert.ElementsMatch(t, []string{"revoke_sessions", "sweep_sessions"}, actions)

	r = ops.do(http.MethodGet, "/admin/api/audit?target="+reg.User.ID, nil)
	require.Equal(t, http.StatusOK, r.status)
	entries = r.body["entries"].([]any)
	require.Len(t, entries, 1)
	revoke := entries[0].(map[string]any)
	assert.Equal(t, "user", revoke["targetType"])
	assert.Equal(t, float64(1), revoke["detail"].(map[string]any)["count"])

	r = ops.do(http.MethodGet, "/admin/api/audit?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "since must be an RFC 3339 timestamp", r.errorMessage())
}

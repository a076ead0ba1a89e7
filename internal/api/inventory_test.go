// ABOUTME: Tests for the inventory endpoints: listing, ownership rules, and sharing
// ABOUTME: Exercises the owner, member, and stranger views of the same inventory

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type household struct {
	ts                  *testServer
	alice, bob, carol   *client
	aliceID, bobID, cID string
	garage              string
}

// newHousehold registers alice, bob and carol; alice owns "Garage" and bob
// is a member of it.
func newHousehold(t *testing.T) *household {
	t.Helper()
	ts := newTestServer(t, nil)
	h := &household{ts: ts, alice: ts.client(t), bob: ts.client(t), carol: ts.client(t)}
	h.aliceID = h.alice.register("alice", "Alice").User.ID
	h.bobID = h.bob.register("bob", "Bob").User.ID
	h.cID = h.carol.register("carol", "Carol").User.ID

	r := h.alice.do(http.MethodPost, "/api/inventories", map[string]string{"name": "Garage"})
	require.Equal(t, http.StatusOK, r.status)
	inv := r.body["inventory"].(map[string]any)
	h.garage = inv["id"].(string)
	assert.Equal(t, "Garage", inv["name"])
	assert.Equal(t, true, inv["isOwner"])

	r = h.alice.do(http.MethodPost, "/api/inventories/"+h.garage+"/members", map[string]string{"userId": h.bobID})
	require.Equal(t, http.StatusOK, r.status)
	return h
}

func (h *household) path(suffix string) string {
	return "/api/inventories/" + h.garage + suffix
}

func summaries(t *testing.T, c *client) []map[string]any {
	t.Helper()
	var body struct {
		Inventories []map[string]any `json:"inventories"`
	}
	require.Equal(t, http.StatusOK, c.decode(http.MethodGet, "/api/inventories", nil, &body))
	return body.Inventories
}

func findSummary(list []map[string]any, id string) map[string]any {
	for _, s := range list {
		if s["id"] == id {
			return s
		}
	}
	return nil
}

func TestCreateInventory_DefaultName(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.client(t)
	alice.register("alice", "Alice")

	r := alice.do(http.MethodPost, "/api/inventories", nil)
	require.Equal(t, http.StatusOK, r.status)
	inv := r.body["inventory"].(map[string]any)
	assert.Equal(t, "New Inventory", inv["name"])

	_, err := ts.docs.Find(context.Background(), inv["id"].(string))
	assert.NoError(t, err, "inventory id is a document id")
	assert.Len(t, summaries(t, alice), 2)
}

func TestListInventories_OwnerAndMember(t *testing.T) {
	h := newHousehold(t)

	owner := findSummary(summaries(t, h.alice), h.garage)
	require.NotNil(t, owner)
	assert.Equal(t, true, owner["isOwner"])

	member := findSummary(summaries(t, h.bob), h.garage)
	require.NotNil(t, member)
	assert.Equal(t, false, member["isOwner"])
	assert.Equal(t, "Garage", member["name"])

	assert.Nil(t, findSummary(summaries(t, h.carol), h.garage))
}

func TestInventoryReadAccess(t *testing.T) {
	h := newHousehold(t)

	for _, c := range []*client{h.alice, h.bob} {
		r := c.do(http.MethodGet, h.path(""), nil)
		require.Equal(t, http.StatusOK, r.status)
		inv := r.body["inventory"].(map[string]any)
		assert.Equal(t, h.aliceID, inv["ownerId"])
		assert.Equal(t, []any{h.bobID}, inv["memberIds"])

		r = c.do(http.MethodGet, h.path("/members"), nil)
		require.Equal(t, http.StatusOK, r.status)
		assert.Equal(t, h.aliceID, r.body["ownerId"])
		assert.Equal(t, []any{map[string]any{"id": h.bobID, "name": "Bob"}}, r.body["members"])
	}

	for _, p := range []string{"", "/members"} {
		r := h.carol.do(http.MethodGet, h.path(p), nil)
		assert.Equal(t, http.StatusForbidden, r.status)
		assert.Equal(t, "You do not have access to this inventory", r.errorMessage())
	}

	r := h.carol.do(http.MethodGet, "/api/inventories/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "Inventory not found", r.errorMessage())
}

func TestOwnerOnlyOperations(t *testing.T) {
	h := newHousehold(t)

	tests := []struct {
		method string
		path   string
		body   any
		msg    string
	}{
		{http.MethodPatch, "", map[string]string{"name": "Mine"}, "Only the owner can update an inventory"},
		{http.MethodDelete, "", nil, "Only the owner can delete an inventory"},
		{http.MethodGet, "/possible-members", nil, "Only the owner can view available users"},
		{http.MethodPost, "/members", map[string]string{"userId": "x"}, "Only the owner can add members"},
		{http.MethodDelete, "/members/x", nil, "Only the owner can remove members"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			for _, c := range []*client{h.bob, h.carol} {
				r := c.do(tt.method, h.path(tt.path), tt.body)
				assert.Equal(t, http.StatusForbidden, r.status)
				assert.Equal(t, tt.msg, r.errorMessage())
			}

			r := h.bob.do(tt.method, "/api/inventories/missing"+tt.path, tt.body)
			assert.Equal(t, http.StatusNotFound, r.status)
			assert.Equal(t, "Inventory not found", r.errorMessage())
		})
	}

	// Nothing changed.
	owner := findSummary(summaries(t, h.alice), h.garage)
	require.NotNil(t, owner)
	assert.Equal(t, "Garage", owner["name"])
}

func TestRenameInventory(t *testing.T) {
	h := newHousehold(t)

	r := h.alice.do(http.MethodPatch, h.path(""), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "No valid fields to update", r.errorMessage())

	r = h.alice.do(http.MethodPatch, h.path(""), map[string]string{"name": "   "})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "Name cannot be empty", r.errorMessage())

	r = h.alice.do(http.MethodPatch, h.path(""), map[string]string{"name": " Shed "})
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, "Shed", r.body["inventory"].(map[string]any)["name"])

	member := findSummary(summaries(t, h.bob), h.garage)
	require.NotNil(t, member)
	assert.Equal(t, "Shed", member["name"])
}

func TestMembership(t *testing.T) {
	h := newHousehold(t)

	r := h.alice.do(http.MethodGet, h.path("/possible-members"), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.Equal(t, []any{map[string]any{"id": h.cID, "name": "Carol"}}, r.body["users"])

	r = h.alice.do(http.MethodPost, h.path("/members"), map[string]string{})
	assert.Equal(t, http.StatusBadRequest, r.status)
	assert.Equal(t, "userId is required", r.errorMessage())

	r = h.alice.do(http.MethodPost, h.path("/members"), map[string]string{"userId": "ghost"})
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "User not found", r.errorMessage())

	// Adding twice is harmless.
	r = h.alice.do(http.MethodPost, h.path("/members"), map[string]string{"userId": h.bobID})
	assert.Equal(t, http.StatusOK, r.status)
	r = h.alice.do(http.MethodGet, h.path("/members"), nil)
	assert.Len(t, r.body["members"], 1)

	r = h.alice.do(http.MethodDelete, h.path("/members/"+h.bobID), nil)
	require.Equal(t, http.StatusOK, r.status)
	assert.JSONEq(t, `{"success":true}`, string(r.raw))

	r = h.bob.do(http.MethodGet, h.path(""), nil)
	assert.Equal(t, http.StatusForbidden, r.status)
	assert.Nil(t, findSummary(summaries(t, h.bob), h.garage))

	r = h.alice.do(http.MethodDelete, h.path("/members/"+h.bobID), nil)
	assert.Equal(t, http.StatusNotFound, r.status)
	assert.Equal(t, "Member not found", r.errorMessage())

	r = h.alice.do(http.MethodPost, h.path("/members"), map[string]string{"userId": h.bobID})
	require.Equal(t, http.StatusOK, r.status)
	r = h.bob.do(http.MethodGet, h.path(""), nil)
	assert.Equal(t, http.StatusOK, r.status)
}

func TestDeleteInventory_KeepsDocument(t *testing.T) {
	h := newHousehold(t)

	r := h.alice.do(http.MethodDelete, h.path(""), nil)
	require.Equal(t, http.StatusOK, r.status)

	for _, c := range []*client{h.alice, h.bob} {
		assert.Nil(t, findSummary(summaries(t, c), h.garage))
		r = c.do(http.MethodGet, h.path(""), nil)
		assert.Equal(t, http.StatusNotFound, r.status)
	}

	_, err := h.ts.docs.Find(context.Background(), h.garage)
	assert.NoError(t, err, "document outlives its access record")
}

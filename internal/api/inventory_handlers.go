// ABOUTME: Handlers for listing, creating, renaming, deleting and sharing inventories
// ABOUTME: Owner and members may read; only the owner may change anything

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/auth"
)

const msgNoAccess = "You do not have access to this inventory"

type inventoryRequest struct {
	Name *string `json:"name"`
}

type memberRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) listInventories(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	inventories, err := h.access.Summaries(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventories": nonNil(inventories)})
}

func (h *Handler) createInventory(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	var req inventoryRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, messages{})
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}

	inv, err := h.access.CreateInventory(r.Context(), p.UserID(), name)
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	h.logger.Info("created inventory", "inventory_id", inv.ID, "user_id", p.UserID())
	writeJSON(w, http.StatusOK, map[string]any{
		"inventory": access.Summary{ID: inv.ID, Name: inv.Name, IsOwner: true},
	})
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())

	inv, err := h.access.RequireAccess(r.Context(), chi.URLParam(r, "id"), p.UserID())
	if err != nil {
		fail(w, r, err, messages{forbidden: msgNoAccess})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": newInventoryView(inv, p.UserID())})
}

func (h *Handler) updateInventory(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m := messages{forbidden: "Only the owner can update an inventory"}

	inv, err := h.access.RequireOwner(r.Context(), id, p.UserID())
	if err != nil {
		fail(w, r, err, m)
		return
	}

	var req inventoryRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, m)
		return
	}
	if req.Name == nil {
		writeError(w, http.StatusBadRequest, "No valid fields to update")
		return
	}
	name := strings.TrimSpace(*req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}

	ok, err := h.access.Rename(r.Context(), id, name)
	if err != nil {
		fail(w, r, err, m)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Inventory not found")
		return
	}
	inv.Name = name
	writeJSON(w, http.StatusOK, map[string]any{"inventory": newInventoryView(inv, p.UserID())})
}

// deleteInventory removes the access record. The document stays.
func (h *Handler) deleteInventory(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m := messages{forbidden: "Only the owner can delete an inventory"}

	if _, err := h.access.RequireOwner(r.Context(), id, p.UserID()); err != nil {
		fail(w, r, err, m)
		return
	}
	if _, err := h.access.DeleteAccess(r.Context(), id); err != nil {
		fail(w, r, err, m)
		return
	}
	h.logger.Info("deleted inventory", "inventory_id", id, "user_id", p.UserID())
	writeSuccess(w)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m := messages{forbidden: msgNoAccess}

	if _, err := h.access.RequireAccess(r.Context(), id, p.UserID()); err != nil {
		fail(w, r, err, m)
		return
	}
	members, err := h.access.MembersWithNames(r.Context(), id)
	if err != nil {
		fail(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ownerId": members.OwnerID,
		"members": newMemberViews(members.Members),
	})
}

func (h *Handler) possibleMembers(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m := messages{forbidden: "Only the owner can view available users"}

	if _, err := h.access.RequireOwner(r.Context(), id, p.UserID()); err != nil {
		fail(w, r, err, m)
		return
	}
	users, err := h.access.AvailableUsers(r.Context(), id, p.UserID())
	if err != nil {
		fail(w, r, err, m)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": newMemberViews(users)})
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	m := messages{forbidden: "Only the owner can add members"}

	if _, err := h.access.RequireOwner(r.Context(), id, p.UserID()); err != nil {
		fail(w, r, err, m)
		return
	}

	var req memberRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, m)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	ok, err := h.access.AddMember(r.Context(), id, req.UserID)
	if err != nil {
		fail(w, r, err, m)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Inventory not found")
		return
	}
	h.logger.Info("added member", "inventory_id", id, "member_id", req.UserID)
	writeSuccess(w)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	id := chi.URLParam(r, "id")
	uid := chi.URLParam(r, "uid")
	m := messages{forbidden: "Only the owner can remove members"}

	if _, err := h.access.RequireOwner(r.Context(), id, p.UserID()); err != nil {
		fail(w, r, err, m)
		return
	}

	ok, err := h.access.RemoveMember(r.Context(), id, uid)
	if err != nil {
		fail(w, r, err, m)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Member not found")
		return
	}
	h.logger.Info("removed member", "inventory_id", id, "member_id", uid)
	writeSuccess(w)
}

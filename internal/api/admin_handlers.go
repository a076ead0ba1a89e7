// ABOUTME: Operator endpoints behind bearer tokens
// ABOUTME: List users and inventories, revoke or sweep sessions, read the operator audit trail

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/store"
)

type adminUserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username,omitempty"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"hasPassword"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (h *Handler) adminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context())
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	out := make([]adminUserView, len(users))
	for i, u := range users {
		out[i] = adminUserView{
			ID:          u.ID,
			Username:    u.Username,
			Name:        u.Name,
			HasPassword: u.PasswordHash != "",
			CreatedAt:   u.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

func (h *Handler) adminListInventories(w http.ResponseWriter, r *http.Request) {
	inventories, err := h.directory.ListInventories(r.Context())
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	out := make([]inventoryView, len(inventories))
	for i, inv := range inventories {
		out[i] = newInventoryView(inv, "")
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventories": out})
}

func (h *Handler) adminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	n, err := h.sessions.RevokeUser(r.Context(), userID)
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	h.logger.Info("operator revoked sessions",
		"operator", auth.OperatorFromContext(r.Context()),
		"user_id", userID,
		"count", n)
	h.recordAudit(r, store.AuditRevokeSessions, "user", userID, n)
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *Handler) adminSweepSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.sessions.Sweep(r.Context())
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	h.logger.Info("operator swept sessions",
		"operator", auth.OperatorFromContext(r.Context()),
		"count", n)
	h.recordAudit(r, store.AuditSweepSessions, "sessions", "", n)
	writeJSON(w, http.StatusOK, map[string]int64{"swept": n})
}

// recordAudit appends to the audit trail. The action has already happened,
// so a failed append is logged rather than reported.
func (h *Handler) recordAudit(r *http.Request, action store.AuditAction, targetType, targetID string, count int64) {
	if h.audit == nil {
		return
	}
	err := h.audit.AppendAuditLog(r.Context(), &store.AuditEntry{
		Actor:      auth.OperatorFromContext(r.Context()),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     map[string]any{"count": count},
	})
	if err != nil {
		h.logger.Error("failed to append audit log", "action", action, "error", err)
	}
}

type auditView struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

func (h *Handler) adminListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []auditView{}})
		return
	}

	q := r.URL.Query()
	var f store.AuditFilter
	if v := q.Get("actor"); v != "" {
		f.Actor = &v
	}
	if v := q.Get("action"); v != "" {
		a := store.AuditAction(v)
		f.Action = &a
	}
	if v := q.Get("target"); v != "" {
		f.Target = &v
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		f.Since = &ts
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		f.Limit = n
	}

	entries, err := h.audit.ListAuditLog(r.Context(), f)
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	out := make([]auditView, len(entries))
	for i, e := range entries {
		out[i] = auditView{
			ID:         e.ID,
			Actor:      e.Actor,
			Action:     string(e.Action),
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Timestamp:  e.Timestamp,
			Detail:     e.Detail,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

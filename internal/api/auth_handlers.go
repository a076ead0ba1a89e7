// ABOUTME: Handlers for registration, login, the current user, and logout
// ABOUTME: Two-leg passkey ceremonies answer the first leg with {options, tempId}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/credential"
)

type registerRequest struct {
	Username string          `json:"username"`
	Name     string          `json:"name"`
	Password string          `json:"password"`
	TempID   string          `json:"tempId"`
	Response json.RawMessage `json:"response"`
}

type loginRequest struct {
	Username string          `json:"username"`
	Password string          `json:"password"`
	TempID   string          `json:"tempId"`
	Response json.RawMessage `json:"response"`
}

type profileRequest struct {
	Name *string `json:"name"`
}

type meResponse struct {
	User        *userView        `json:"user"`
	Inventories []access.Summary `json:"inventories"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	m := messages{internal: "Registration failed"}

	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, m)
		return
	}

	res, err := h.accounts.Register(r.Context(), credential.RegistrationRequest{
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
		TempID:   req.TempID,
		Response: req.Response,
	})
	if err != nil {
		if isAuthFailure(err) {
			h.gate.ClearCookie(w, r)
		}
		fail(w, r, err, m)
		return
	}
	if res.Challenge != nil {
		writeJSON(w, http.StatusOK, res.Challenge)
		return
	}

	h.gate.SetCookie(w, r, res.Session)
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        newUserView(res.User),
		"inventoryId": res.InventoryID,
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	m := messages{internal: "Authentication failed"}

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, m)
		return
	}

	res, err := h.accounts.Login(r.Context(), credential.LoginRequest{
		Username: req.Username,
		Password: req.Password,
		TempID:   req.TempID,
		Response: req.Response,
	})
	if err != nil {
		if isAuthFailure(err) {
			h.gate.ClearCookie(w, r)
		}
		fail(w, r, err, m)
		return
	}
	if res.Challenge != nil {
		writeJSON(w, http.StatusOK, res.Challenge)
		return
	}

	h.gate.SetCookie(w, r, res.Session)
	writeJSON(w, http.StatusOK, meResponse{
		User:        newUserView(res.User),
		Inventories: nonNil(res.Inventories),
	})
}

// me reports the current user, or {"user": null} when there is none.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	p, err := h.gate.Resolve(w, r)
	if err != nil {
		if isGateError(err) {
			writeJSON(w, http.StatusOK, map[string]any{"user": nil})
			return
		}
		fail(w, r, err, messages{})
		return
	}

	inventories, err := h.accounts.Me(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err, messages{})
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:        newUserView(p.User),
		Inventories: nonNil(inventories),
	})
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.gate.Resolve(w, r)
	if err != nil {
		if isGateError(err) {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		fail(w, r, err, messages{})
		return
	}

	var req profileRequest
	if err := decodeBody(w, r, &req); err != nil {
		fail(w, r, err, messages{})
		return
	}

	user, err := h.accounts.UpdateProfile(r.Context(), p.UserID(), req.Name)
	if err != nil {
		fail(w, r, err, messages{notFound: "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserView(user)})
}

// logout always succeeds and always clears the cookie.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.accounts.Logout(r.Context(), h.gate.SessionID(r))
	h.gate.ClearCookie(w, r)
	writeSuccess(w)
}

func isGateError(err error) bool {
	return errors.Is(err, auth.ErrUnauthenticated) ||
		errors.Is(err, auth.ErrSessionExpired) ||
		errors.Is(err, auth.ErrUserNotFound)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// isAuthFailure reports errors answered with 401, which always clear the
// session cookie.
func isAuthFailure(err error) bool {
	return errors.Is(err, credential.ErrInvalidCredentials) || errors.Is(err, credential.ErrChallengeExpired)
}

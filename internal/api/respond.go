// ABOUTME: JSON response helpers and the error-to-status mapping for the HTTP API
// ABOUTME: Every error body is {"error": "<message>"}; internal details are logged, never returned

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/account"
	"github.com/2389/homie/internal/credential"
	"github.com/2389/homie/internal/store"
)

// maxBodyBytes caps request bodies. Passkey responses are the largest.
const maxBodyBytes = 64 << 10

var errBadJSON = errors.New("Invalid JSON body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// decodeBody reads a single JSON value. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errBadJSON
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errBadJSON
	}
	return nil
}

// messages overrides the response text for one endpoint.
type messages struct {
	forbidden string
	notFound  string
	internal  string
}

// fail maps err onto a status and writes it. Unknown errors are logged and
// reported with m.internal.
func fail(w http.ResponseWriter, r *http.Request, err error, m messages) {
	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr):
		slog.Warn("request rejected",
			"path", r.URL.Path,
			"field", verr.Field,
			"reason", verr.Message)
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, errBadJSON):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, credential.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
	case errors.Is(err, credential.ErrChallengeExpired):
		writeError(w, http.StatusUnauthorized, "Challenge expired")
	case errors.Is(err, account.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already taken")
	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, orDefault(m.forbidden, "Forbidden"))
	case errors.Is(err, access.ErrNotFound):
		writeError(w, http.StatusNotFound, orDefault(m.notFound, "Inventory not found"))
	case errors.Is(err, store.ErrUserNotFound):
		writeError(w, http.StatusNotFound, orDefault(m.notFound, "User not found"))
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		writeError(w, http.StatusInternalServerError, orDefault(m.internal, "Internal server error"))
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

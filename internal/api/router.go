// ABOUTME: HTTP router for the auth, inventory, health and operator endpoints
// ABOUTME: Session-protected routes sit behind the auth gate; operator routes behind bearer tokens

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/account"
	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/store"
)

// Sessions is what the operator endpoints need from the session manager.
type Sessions interface {
	RevokeUser(ctx context.Context, userID string) (int64, error)
	Sweep(ctx context.Context) (int64, error)
}

// Directory lists everything, for operators.
type Directory interface {
	ListUsers(ctx context.Context) ([]*store.User, error)
	ListInventories(ctx context.Context) ([]*store.Inventory, error)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the router.
type Deps struct {
	Accounts  *account.Service
	Access    *access.Control
	Gate      *auth.Gate
	Sessions  Sessions
	Directory Directory
	Health    Pinger
	// Audit records operator actions. Nil disables the audit trail.
	Audit store.AuditStore
	// Tokens verifies operator tokens. Nil disables the operator API.
	Tokens  auth.TokenVerifier
	Origins []string
}

// Handler holds the endpoint implementations.
type Handler struct {
	accounts  *account.Service
	access    *access.Control
	gate      *auth.Gate
	sessions  Sessions
	directory Directory
	health    Pinger
	audit     store.AuditStore
	logger    *slog.Logger
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	h := &Handler{
		accounts:  d.Accounts,
		access:    d.Access,
		gate:      d.Gate,
		sessions:  d.Sessions,
		directory: d.Directory,
		health:    d.Health,
		audit:     d.Audit,
		logger:    slog.Default().With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(recoverer(h.logger))
	r.Use(requestLogger(h.logger))
	r.Use(corsHandler(d.Origins))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", h.healthz)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Get("/me", h.me)
		r.Patch("/me", h.updateMe)
		r.Post("/logout", h.logout)
	})

	r.Route("/api/inventories", func(r chi.Router) {
		r.Use(h.gate.Require)
		r.Get("/", h.listInventories)
		r.Post("/", h.createInventory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getInventory)
			r.Patch("/", h.updateInventory)
			r.Delete("/", h.deleteInventory)
			r.Get("/members", h.listMembers)
			r.Post("/members", h.addMember)
			r.Delete("/members/{uid}", h.removeMember)
			r.Get("/possible-members", h.possibleMembers)
		})
	})

	if d.Tokens != nil {
		r.Route("/admin/api", func(r chi.Router) {
			r.Use(auth.BearerMiddleware(d.Tokens))
			r.Get("/users", h.adminListUsers)
			r.Get("/inventories", h.adminListInventories)
			r.Delete("/users/{id}/sessions", h.adminRevokeSessions)
			r.Post("/sessions/sweep", h.adminSweepSessions)
			r.Get("/audit", h.adminListAudit)
		})
	}

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ABOUTME: Server orchestrator that wires storage, auth, the HTTP API and document sync
// ABOUTME: Owns the listener lifecycle, the session sweeper, and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"tailscale.com/tsnet"

	"github.com/2389/homie/internal/access"
	"github.com/2389/homie/internal/account"
	"github.com/2389/homie/internal/api"
	"github.com/2389/homie/internal/auth"
	"github.com/2389/homie/internal/ceremony"
	"github.com/2389/homie/internal/config"
	"github.com/2389/homie/internal/credential"
	"github.com/2389/homie/internal/docs"
	"github.com/2389/homie/internal/docsync"
	"github.com/2389/homie/internal/session"
	"github.com/2389/homie/internal/store"
)

// Server runs homie: the JSON API and the sync socket on one listener.
type Server struct {
	config      *config.Config
	store       *store.SQLiteStore
	broadcaster *docs.Broadcaster
	ceremonies  ceremony.Store
	sessions    *session.Manager
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// baseCtx parents every request context. Cancelling it ends sync sockets,
	// which http.Server.Shutdown does not wait for.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	sockets    socketTracker
}

// determineBaseURL resolves the external URL from config or environment.
func determineBaseURL(cfg *config.Config, logger *slog.Logger) string {
	if cfg.Server.BaseURL != "" {
		return cfg.Server.BaseURL
	}

	if envURL := os.Getenv("HOMIE_BASE_URL"); envURL != "" {
		return envURL
	}

	if !cfg.Tailscale.Enabled {
		return "http://" + cfg.Server.HTTPAddr
	}

	if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
		logger.Warn("server.base_url/HOMIE_BASE_URL not set - passkeys may fail. Set HOMIE_BASE_URL to the full tailnet URL (e.g., https://homie.your-tailnet.ts.net)")
		return "https://" + cfg.Tailscale.Hostname
	}
	return "http://" + cfg.Tailscale.Hostname
}

// initStore opens the database named by config, or HOMIE_DB_PATH if set.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("HOMIE_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initCeremonies creates the challenge store for passkey mode.
func initCeremonies(ctx context.Context, cfg *config.Config) (ceremony.Store, error) {
	ttl := cfg.Auth.Passkey.ChallengeTTL
	if cfg.Challenges.Backend != config.ChallengeBackendRedis {
		return ceremony.NewMemoryStore(ttl, cfg.Challenges.MaxEntries), nil
	}
	client, err := ceremony.Connect(ctx, cfg.Challenges.RedisURL)
	if err != nil {
		return nil, err
	}
	return ceremony.NewRedisStore(client, ttl), nil
}

// createVerifier picks the credential verifier for auth.mode.
func createVerifier(cfg *config.Config, s *store.SQLiteStore, ceremonies ceremony.Store, baseURL string) (credential.Verifier, error) {
	switch cfg.Auth.Mode {
	case config.AuthModePasskey:
		return credential.NewPasskeys(s, ceremonies, credential.PasskeyConfig{
			BaseURL:         baseURL,
			RPDisplayName:   cfg.Auth.Passkey.RPDisplayName,
			StrictSignCount: cfg.Auth.Passkey.RejectSignCountRegression(),
		})
	case config.AuthModePassword, "":
		return credential.NewPassword(s, cfg.Auth.MinPasswordLength), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// createTokenVerifier returns nil when no operator secret is configured.
func createTokenVerifier(cfg *config.Config, logger *slog.Logger) (auth.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("operator API disabled - no auth.jwt_secret configured")
		return nil, nil
	}
	v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	logger.Info("operator API enabled at /admin/api")
	return v, nil
}

// originPatterns turns configured origins into the host patterns the
// WebSocket handshake checks against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// New creates a Server from cfg. Nothing listens until Run.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		config:      cfg,
		store:       s,
		broadcaster: docs.NewBroadcaster(logger.With("component", "broadcaster")),
		logger:      logger.With("component", "server"),
	}
	srv.baseCtx, srv.cancelBase = context.WithCancel(context.Background())

	if cfg.Auth.Mode == config.AuthModePasskey {
		srv.ceremonies, err = initCeremonies(ctx, cfg)
		if err != nil {
			srv.closeResources()
			return nil, fmt.Errorf("initializing challenge store: %w", err)
		}
	}

	baseURL := determineBaseURL(cfg, logger)
	verifier, err := createVerifier(cfg, s, srv.ceremonies, baseURL)
	if err != nil {
		srv.closeResources()
		return nil, err
	}

	tokens, err := createTokenVerifier(cfg, srv.logger)
	if err != nil {
		srv.closeResources()
		return nil, err
	}

	repo := docs.NewRepo(s, srv.broadcaster)
	control := access.New(s, repo)
	srv.sessions = session.NewManager(s, cfg.Auth.SessionTTL)

	accounts := account.New(account.Config{
		Verifier:      verifier,
		Store:         s,
		Sessions:      srv.sessions,
		Inventories:   control,
		Documents:     repo,
		InventoryName: cfg.Inventories.DefaultName,
	})

	gate := auth.NewGate(srv.sessions, s, auth.CookieConfig{
		Name:       cfg.Auth.CookieName,
		TrustProxy: cfg.Server.TrustProxy,
	})

	router := api.NewRouter(api.Deps{
		Accounts:  accounts,
		Access:    control,
		Gate:      gate,
		Sessions:  srv.sessions,
		Directory: s,
		Health:    s,
		Audit:     s,
		Tokens:    tokens,
		Origins:   cfg.Server.Origins,
	})

	syncHandler := docsync.NewHandler(repo, control, docsync.Options{
		PingInterval:    cfg.Sync.PingInterval,
		WriteTimeout:    cfg.Sync.WriteTimeout,
		MaxMessageBytes: cfg.Sync.MaxMessageBytes,
	})
	upgrader := auth.NewUpgrader(srv.sessions, s, &trackedSync{next: syncHandler, sockets: &srv.sockets}, auth.UpgraderConfig{
		Path:           cfg.Sync.Path,
		CookieName:     cfg.Auth.CookieName,
		OriginPatterns: originPatterns(cfg.Server.Origins),
	})

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(upgrader.Wrap(router), "homie"),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return srv.baseCtx
		},
	}

	srv.logger.Info("server configured",
		"auth_mode", verifier.Mode(),
		"base_url", baseURL,
		"sync_path", cfg.Sync.Path,
	)
	return srv, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// socketTracker counts live sync sockets. Once closed it admits no more, so
// Add never races the shutdown Wait.
type socketTracker struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func (t *socketTracker) acquire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	return true
}

func (t *socketTracker) release() {
	t.wg.Done()
}

// close stops admitting sockets and returns a channel closed when the last
// one has finished.
func (t *socketTracker) close() <-chan struct{} {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	return done
}

// trackedSync counts live sync sockets so shutdown can wait for them.
type trackedSync struct {
	next    auth.SyncHandler
	sockets *socketTracker
}

func (t *trackedSync) ServeConn(ctx context.Context, conn *websocket.Conn, p *auth.Principal) {
	if !t.sockets.acquire() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer t.sockets.release()
	t.next.ServeConn(ctx, conn, p)
}

// setupListener creates the HTTP listener (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.setupTailscaleListener(ctx)
	}

	s.logger.Info("starting server", "http_addr", s.config.Server.HTTPAddr)
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
// Returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		s.closeResources()
		return err
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweeper := session.NewSweeper(s.sessions, s.config.Auth.SessionSweepInterval)
	go sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	stopSweep()
	<-sweeper.Done()

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh deadline; Run's context is
// already cancelled by the time it's called.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, drains in-flight ones, closes sync
// sockets, and releases storage.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.cancelBase()
	if err := s.waitForSockets(ctx); err != nil {
		errs = appendCloseError(errs, "sync sockets", err)
	}

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = append(errs, s.closeResources()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Server) waitForSockets(ctx context.Context) error {
	select {
	case <-s.sockets.close():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeResources closes everything New opened. Safe to call more than once.
func (s *Server) closeResources() []error {
	var errs []error
	s.broadcaster.Close()
	if s.ceremonies != nil {
		errs = appendCloseError(errs, "challenge store close", s.ceremonies.Close())
		s.ceremonies = nil
	}
	if s.store != nil {
		errs = appendCloseError(errs, "store close", s.store.Close())
		s.store = nil
	}
	if s.cancelBase != nil {
		s.cancelBase()
	}
	return errs
}

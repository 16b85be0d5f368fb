// Package server implements the tickler HTTP server: the REST API over the
// persistent store, auth, and a server-sent event feed of changes.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoCodeAlone/tickler/assist"
	"github.com/GoCodeAlone/tickler/config"
	"github.com/GoCodeAlone/tickler/notify"
	"github.com/GoCodeAlone/tickler/remote"
	"github.com/GoCodeAlone/tickler/server/api"
)

// Server is the tickler HTTP server.
type Server struct {
	cfg     config.Config
	mux     *http.ServeMux
	httpSrv *http.Server
	logger  *slog.Logger

	store     remote.Gateway
	assistant assist.Generator
	bus       notify.Bus
	handlers  *api.Handlers
	routes    sync.Once

	// JWT secret caching
	secretOnce      sync.Once
	generatedSecret string

	startTime time.Time
	version   string
}

// New creates a new Server with the given config and logger.
func New(cfg config.Config, ver string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		logger:    logger,
		bus:       notify.NewInMemoryBus(),
		startTime: time.Now(),
		version:   ver,
	}
}

// SetStore attaches the persistent store the API serves.
func (s *Server) SetStore(store remote.Gateway) {
	s.store = store
}

// SetAssistant enables POST /api/assist.
func (s *Server) SetAssistant(g assist.Generator) {
	s.assistant = g
}

// SetBus replaces the bus that feeds /events.
func (s *Server) SetBus(bus notify.Bus) {
	s.bus = bus
}

// Handler returns the server's routes. Call after the Set methods.
func (s *Server) Handler() http.Handler {
	s.routes.Do(s.registerRoutes)
	return s.mux
}

// Start registers routes and begins listening.
func (s *Server) Start() error {
	addr := s.cfg.Server.Addr
	if addr == "" {
		addr = ":9090"
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	s.logger.Info("server listening", slog.String("addr", addr))
	return s.httpSrv.ListenAndServe()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	h := &api.Handlers{
		Store:     s.store,
		Assistant: s.assistant,
		Limiter:   api.NewLimiter(s.cfg.Assist.RatePerMinute),
		Bus:       s.bus,
		Logger:    s.logger,
		Version:   s.version,
		StartAt:   s.startTime.Unix(),
	}
	s.handlers = h

	// Public routes (no auth required)
	s.mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/status", h.StatusHandler())

	// SSE: auth handled inline because EventSource can't set headers
	s.mux.HandleFunc("GET /events", s.handleSSE)

	// Protected API, wrapped in auth middleware
	apiMux := http.NewServeMux()
	h.RegisterRoutes(apiMux)
	apiMux.HandleFunc("GET /api/auth/me", s.handleMe)

	s.mux.Handle("/api/", s.authMiddleware(apiMux))
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleSSE streams the caller's change events as server-sent events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// Verify auth via query token param for SSE (EventSource can't set headers)
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	owner, err := verifyJWT(s.jwtSecret(), token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ch := make(chan []byte, 64)
	unsubscribe := s.bus.Subscribe(owner, func(_ context.Context, ev *notify.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		select {
		case ch <- data:
		default:
			// Client channel full, skip
		}
		return nil
	})
	defer unsubscribe()

	// Send initial connected event
	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", data) //nolint:errcheck
			flusher.Flush()
		}
	}
}

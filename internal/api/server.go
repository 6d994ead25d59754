// Package api provides the local HTTP API the extension UI and the
// enrichment service call into.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/profilecrm/profilecrm/internal/core"
	"github.com/profilecrm/profilecrm/internal/logging"
	"github.com/profilecrm/profilecrm/internal/storage"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	store   *storage.Store
	wsHub   *WebSocketHub
	version string

	log *logging.Logger
}

// Config for the server
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	Store          *storage.Store
	Version        string
}

// New creates a new API server
func New(cfg Config) *Server {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		store:   cfg.Store,
		wsHub:   NewWebSocketHub(),
		version: cfg.Version,
		log:     logging.WithField("component", "api"),
	}

	s.setupRouter(cfg.AllowedOrigins)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRouter configures all routes
func (s *Server) setupRouter(allowedOrigins []string) {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		// Contacts
		r.Get("/contacts", s.handleGetContacts)
		r.Put("/contacts", s.handleSaveContact)
		r.Get("/contacts/{username}", s.handleGetContact)
		r.Put("/contacts/{username}", s.handleSaveContact)
		r.Patch("/contacts/{username}", s.handleUpdateContact)
		r.Delete("/contacts/{username}", s.handleDeleteContact)
		r.Get("/contacts/{username}/interactions", s.handleGetContactInteractions)
		r.Get("/followups", s.handleGetFollowUps)

		// Lists
		r.Get("/lists", s.handleGetLists)
		r.Post("/lists", s.handleCreateList)
		r.Get("/lists/{id}", s.handleGetList)
		r.Delete("/lists/{id}", s.handleDeleteList)
		r.Get("/lists/{id}/contacts", s.handleGetListContacts)

		// Tags
		r.Get("/tags", s.handleGetTags)
		r.Post("/tags", s.handleCreateTag)
		r.Get("/tags/{id}", s.handleGetTag)
		r.Delete("/tags/{id}", s.handleDeleteTag)

		// Interactions
		r.Post("/interactions", s.handleLogInteraction)
		r.Get("/interactions/{id}", s.handleGetInteraction)
		r.Delete("/interactions/{id}", s.handleDeleteInteraction)

		// Settings
		r.Get("/settings", s.handleGetSettings)
		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handlePutSetting)

		// Whole-store operations
		r.Get("/stats", s.handleGetStats)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/integrity", s.handleCheckIntegrity)
	})

	// WebSocket
	r.Get("/ws", s.wsHub.ServeWS)

	s.router = r
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	// Start WebSocket hub
	go s.wsHub.Run()

	s.log.Info("API server starting on http://%s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wsHub.Stop()
	return err
}

// Broadcast sends a message to all WebSocket clients
func (s *Server) Broadcast(msgType string, data interface{}) {
	s.wsHub.Broadcast(WebSocketMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// requestLogger logs each request once it completes
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.log.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

// --- Response helpers ---

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps a storage error onto a status code
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrContactNotFound),
		errors.Is(err, core.ErrListNotFound),
		errors.Is(err, core.ErrTagNotFound),
		errors.Is(err, core.ErrInteractionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, core.ErrUnsupportedVersion):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStoreInit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON request body into dst
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.DB().SchemaVersion(r.Context())
	if err != nil {
		s.respondJSON(w, statusFor(err), map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       s.version,
		"schemaVersion": version,
		"clients":       s.wsHub.ClientCount(),
	})
}

func notFound(sentinel error, key string) error {
	return fmt.Errorf("%w: %s", sentinel, key)
}

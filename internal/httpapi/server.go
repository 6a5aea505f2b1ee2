// Package httpapi is the chi-routed HTTP surface: the websocket upgrade
// entry point, text export, stats, and document minting (spec.md §6;
// SPEC_FULL.md §6/§4.D).
//
// Grounded on the teacher's pkg/server/server.go (Server, ServerState,
// handleSocket/handleText/handleStats), rewired onto
// github.com/go-chi/chi/v5 for routing and github.com/go-chi/cors for
// CORS, the way the pack's opencode server wires the same stack.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/quillboard/quillboard/internal/archive"
	"github.com/quillboard/quillboard/internal/driver"
	"github.com/quillboard/quillboard/internal/registry"
)

// Config configures the HTTP surface and the driver connections it
// spawns. Grounded on the teacher's cmd/server/main.go Config struct.
type Config struct {
	EnableCORS      bool
	WSReadTimeout   time.Duration
	WSWriteTimeout  time.Duration
	PersistInterval time.Duration
}

// DefaultConfig mirrors the teacher's cmd/server/main.go defaults.
func DefaultConfig() Config {
	return Config{
		EnableCORS:      true,
		WSReadTimeout:   5 * time.Minute,
		WSWriteTimeout:  5 * time.Second,
		PersistInterval: archive.PersistInterval,
	}
}

// Server is the top-level HTTP handler: one chi router over the
// registry, with an optional archive collaborator for persistence.
type Server struct {
	router    *chi.Mux
	registry  *registry.Registry
	archive   *archive.Archive // may be nil
	cfg       Config
	startTime time.Time

	persistingMu sync.Mutex
	persisting   map[string]context.CancelFunc
}

// New builds the HTTP surface over reg, optionally backed by ar for
// text export fallback and /api/stats database size.
func New(reg *registry.Registry, ar *archive.Archive, cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		registry:   reg,
		archive:    ar,
		cfg:        cfg,
		startTime:  time.Now(),
		persisting: make(map[string]context.CancelFunc),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.cfg.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/socket/{id}", s.handleSocket)
	s.router.Get("/api/text/{id}", s.handleText)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Post("/api/document", s.handleMintDocument)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// driverConfig adapts the server's timeouts to internal/driver's Config.
func (s *Server) driverConfig() driver.Config {
	return driver.Config{ReadTimeout: s.cfg.WSReadTimeout, WriteTimeout: s.cfg.WSWriteTimeout}
}

// Shutdown stops every document's background persister. Grounded on the
// teacher's Server.Shutdown (which kills every in-memory document);
// this repo has no equivalent "kill" since sessions are just released
// handles, so shutdown's only remaining job is to stop the persisters.
func (s *Server) Shutdown(ctx context.Context) error {
	s.persistingMu.Lock()
	defer s.persistingMu.Unlock()

	for docID, cancel := range s.persisting {
		cancel()
		delete(s.persisting, docID)
	}
	return nil
}

// Package agent implements the remote upload agent: a small HTTP
// server that runs on the machine owning the build files and executes
// upload tasks dispatched by an orchestrator elsewhere. The agent
// resolves its own storage gateway; tasks carry no credentials.
package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/artifactoor/pkg/config"
	"github.com/ethpandaops/artifactoor/pkg/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the agent HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log     logrus.FieldLogger
	cfg     *config.AgentConfig
	gateway storage.Gateway
	version string

	maxObjectSize int64
	uploads       *semaphore.Weighted
	inflight      atomic.Int64
	started       time.Time

	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
}

// NewServer creates a new agent server over the given gateway.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.AgentConfig,
	gateway storage.Gateway,
	version string,
) (Server, error) {
	var maxObjectSize int64

	if cfg.MaxObjectSize != "" {
		size, err := units.RAMInBytes(cfg.MaxObjectSize)
		if err != nil {
			return nil, fmt.Errorf("parsing agent max_object_size: %w", err)
		}

		maxObjectSize = size
	}

	return &server{
		log:           log.WithField("component", "agent"),
		cfg:           cfg,
		gateway:       gateway,
		version:       version,
		maxObjectSize: maxObjectSize,
		uploads:       semaphore.NewWeighted(int64(cfg.MaxConcurrentUploads)),
		done:          make(chan struct{}),
	}, nil
}

// Start builds the router and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.started = time.Now()

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Listen).
			Info("Agent server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	s.log.Info("Agent server stopped")

	return nil
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/healthz", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Upload endpoint.
		r.Group(func(r chi.Router) {
			if s.cfg.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(s.cfg.RateLimit))
			}

			if s.cfg.AuthToken != "" {
				r.Use(s.requireAuth)
			}

			r.Post("/uploads", s.handleUpload)
		})
	})

	return r
}

package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	catalog driving.CatalogService
	warmer  driving.Warmer // optional

	// Infrastructure
	store       Pinger // cache database health check
	redisClient Pinger // Redis health check (optional)

	validate *validator.Validate
	upgrader websocket.Upgrader
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
	}
}

// NewServer creates a new HTTP server. warmer and redisClient may be nil.
func NewServer(
	cfg Config,
	catalog driving.CatalogService,
	warmer driving.Warmer,
	store Pinger,
	redisClient Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		logger:      logger,
		catalog:     catalog,
		warmer:      warmer,
		store:       store,
		redisClient: redisClient,
		validate:    validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)
	handler = NewRequestIDMiddleware().Handler(handler)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // a cold window may walk many remote pages
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Cache warmer
	s.router.HandleFunc("GET /api/v1/warm", s.handleWarmStates)
	s.router.HandleFunc("POST /api/v1/warm", s.handleWarmAll)

	// Relation lookups
	s.router.HandleFunc("GET /api/v1/characters/{id}/episodes", s.handleCharacterEpisodes)
	s.router.HandleFunc("GET /api/v1/characters/{id}/origin", s.handleCharacterOrigin)
	s.router.HandleFunc("GET /api/v1/characters/{id}/location", s.handleCharacterLocation)
	s.router.HandleFunc("GET /api/v1/episodes/{id}/characters", s.handleEpisodeCharacters)
	s.router.HandleFunc("GET /api/v1/locations/{id}/residents", s.handleLocationResidents)

	// Domain endpoints; {domain} is characters, episodes or locations
	s.router.HandleFunc("GET /api/v1/{domain}", s.handleList)
	s.router.HandleFunc("POST /api/v1/{domain}/refresh", s.handleRefresh)
	s.router.HandleFunc("GET /api/v1/{domain}/watch", s.handleWatch)
	s.router.HandleFunc("GET /api/v1/{domain}/{ids}", s.handleGet)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

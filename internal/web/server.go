// Package web serves the read-only admin API over the persisted store.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ocd-calaccess/internal/logger"
	"github.com/ocd-calaccess/internal/web/handlers"
	"github.com/ocd-calaccess/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	log        *logger.Logger
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance over backend.
func NewServer(config *Config, backend handlers.Backend, log *logger.Logger) *Server {
	server := &Server{
		config: config,
		log:    log,
	}
	server.setupRoutes(backend)

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(backend handlers.Backend) {
	s.router = mux.NewRouter()

	apiHandler := &handlers.APIHandler{Store: backend, Log: s.log}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/versions", apiHandler.ListVersions).Methods("GET")
	api.HandleFunc("/versions/{id:[0-9]+}", apiHandler.GetVersion).Methods("GET")
	api.HandleFunc("/persons/{id:[0-9]+}", apiHandler.GetPerson).Methods("GET")
	api.HandleFunc("/merges", apiHandler.ListMerges).Methods("GET")
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")

	s.router.Use(middleware.RequestLogging(s.log))
	api.Use(middleware.APIKey(s.config.Auth.APIKey))
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", "addr", s.httpServer.Addr, "auth", s.config.Auth.APIKey != "")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

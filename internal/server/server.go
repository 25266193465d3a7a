// Package server exposes the workspace over an HTTP JSON API with a
// websocket change feed.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/funnyzak/reqdeck/internal/composer"
	"github.com/funnyzak/reqdeck/internal/config"
	"github.com/funnyzak/reqdeck/internal/logger"
	"github.com/funnyzak/reqdeck/internal/workspace"
)

// Server HTTP server
type Server struct {
	config  *config.ServerConfig
	logger  logger.Logger
	handler *Handler
	hub     *Hub
	auth    *TokenAuth
	router  *mux.Router
	httpSrv *http.Server
}

// New creates a server for ws. persister may be nil, which disables the
// save and snapshot endpoints.
func New(cfg *config.ServerConfig, ws *workspace.Store, comp *composer.Composer, persister Persister, log logger.Logger) *Server {
	var hub *Hub
	if cfg.WebSocket {
		hub = NewHub(log)
		ws.OnChange(hub.Publish)
	}
	handler := NewHandler(ws, comp, persister, hub, log, cfg.MaxBodyBytes)

	router := mux.NewRouter()
	api := router
	if base := normalizePath(cfg.APIPath); base != "/" {
		api = router.PathPrefix(base).Subrouter()
	}
	handler.Register(api)
	router.Use(requestLogger(log))
	auth := NewTokenAuth(cfg.AuthToken)
	if auth.Enabled() {
		router.Use(auth.Middleware)
	}

	return &Server{
		config:  cfg,
		logger:  log,
		handler: handler,
		hub:     hub,
		auth:    auth,
		router:  router,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Token returns the API token clients must present, "" when the API is
// open.
func (s *Server) Token() string {
	return s.auth.Token()
}

// Addr is the listen address built from the configured host and port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// disconnects feed clients.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Starting HTTP server",
		"addr", s.httpSrv.Addr,
		"api_path", normalizePath(s.config.APIPath),
		"websocket", s.hub != nil,
		"auth", s.auth.Enabled(),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", s.httpSrv.Addr, err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		s.logger.Info("Shutting down server...")

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if s.hub != nil {
			s.hub.Close()
		}
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Server forced to shutdown", "error", err)
			return err
		}
		return nil
	})

	err := group.Wait()
	s.logger.Info("Server exited")
	return err
}

func requestLogger(log logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("API request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"duration", time.Since(start),
			)
		})
	}
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

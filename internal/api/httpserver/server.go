// Package httpserver owns the HTTP listener lifecycle.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stagewire/platform/internal/config"
	"github.com/stagewire/platform/internal/logging"
)

// Server wraps http.Server with configured timeouts.
type Server struct {
	srv *http.Server
	log *logging.Logger
}

// New builds a server for the handler using the configured timeouts. The
// idle timeout applies to keep-alive connections only; websocket
// connections, once hijacked, are governed by their own ping/pong deadlines.
func New(cfg config.ServerConfig, log *logging.Logger, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeoutSec) * time.Second,
			IdleTimeout:  time.Duration(cfg.IdleTimeoutSec) * time.Second,
		},
		log: log,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Addr reports the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

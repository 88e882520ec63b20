// Package server runs the telemetry HTTP endpoint that serves Prometheus
// metrics and a health probe while an experiment runs.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tsforecast/pkg/constants"
)

// StatusFunc reports extra fields for the health response
type StatusFunc func() map[string]interface{}

// Config contains server configuration
type Config struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Server serves /metrics and /health
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	router     *mux.Router
	logger     *logrus.Logger
	config     *Config
	status     StatusFunc
	started    time.Time
}

// NewServer wires the routes. metrics is typically a promhttp handler.
func NewServer(config *Config, metrics http.Handler, status StatusFunc, logger *logrus.Logger) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		config:  config,
		status:  status,
		started: time.Now(),
	}

	s.router.Handle(constants.DefaultMetricsPath, metrics).Methods(http.MethodGet)
	s.router.HandleFunc(constants.DefaultHealthPath, s.health).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)

	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	s.logger.WithField("addr", ln.Addr().String()).Info("Starting telemetry server")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.WithError(err).Error("Telemetry server error")
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.config.Addr
	}
	return s.listener.Addr().String()
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Errorf("Error shutting down telemetry server: %v", err)
		return err
	}
	s.logger.Info("Telemetry server stopped")
	return nil
}

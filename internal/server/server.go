package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/flsim/internal/experiment"
	obsmetrics "github.com/inferloop/flsim/internal/observability/metrics"
	"github.com/inferloop/flsim/internal/simulation"
	"github.com/inferloop/flsim/internal/storage"
)

// Config contains the HTTP server settings.
type Config struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// NewDefaultConfig returns the default server configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Validate checks the server configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Server exposes the simulation engine over HTTP: the pull interface for
// client states, round history and experiment documents.
type Server struct {
	config       *Config
	orchestrator *simulation.Orchestrator
	store        *experiment.Store
	backend      storage.Backend
	collector    *obsmetrics.Collector
	logger       *logrus.Logger
	httpServer   *http.Server

	// cancelRound aborts the in-flight round, if any.
	cancelMu    sync.Mutex
	cancelRound context.CancelFunc
}

// NewServer creates an HTTP server around an orchestrator and an experiment
// storage backend.
func NewServer(config *Config, orch *simulation.Orchestrator, store *experiment.Store, backend storage.Backend, collector *obsmetrics.Collector, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = NewDefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		config:       config,
		orchestrator: orch,
		store:        store,
		backend:      backend,
		collector:    collector,
		logger:       logger,
	}

	router := mux.NewRouter()
	s.setupRoutes(router)

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.loggingMiddleware(router),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes(router *mux.Router) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.collector != nil {
		router.Handle("/metrics", s.collector.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/clients", s.handleClients).Methods(http.MethodGet)
	api.HandleFunc("/rounds", s.handleRounds).Methods(http.MethodGet)
	api.HandleFunc("/rounds/run", s.handleRunRound).Methods(http.MethodPost)
	api.HandleFunc("/simulation/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPatch)
	api.HandleFunc("/experiments", s.handleSaveExperiment).Methods(http.MethodPost)
	api.HandleFunc("/experiments", s.handleListExperiments).Methods(http.MethodGet)
	api.HandleFunc("/experiments/compare", s.handleCompare).Methods(http.MethodPost)
	api.HandleFunc("/experiments/{id}", s.handleGetExperiment).Methods(http.MethodGet)
	api.HandleFunc("/experiments/{id}", s.handleDeleteExperiment).Methods(http.MethodDelete)
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address()).Info("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

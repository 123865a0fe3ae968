// Package api provides the HTTP REST API and WebSocket server for the paddy
// dryer terminal.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/paddy-dryer-core/internal/audit"
	"github.com/nerrad567/paddy-dryer-core/internal/auth"
	"github.com/nerrad567/paddy-dryer-core/internal/batch"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/config"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/database"
	"github.com/nerrad567/paddy-dryer-core/internal/infrastructure/logging"
	"github.com/nerrad567/paddy-dryer-core/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Dependency is an optional backing service reported by /health.
// *mqtt.Client and *influxdb.Client implement it.
type Dependency interface {
	HealthCheck(ctx context.Context) error
	IsConnected() bool
}

// HistorySearcher queries the batch history across batches.
// *audit.SQLiteRepository implements it.
type HistorySearcher interface {
	Query(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Sessions *auth.SessionManager
	Perms    *auth.PermissionModel
	Monitor  *auth.ActivityMonitor
	Batches  *batch.Lifecycle

	// Optional.
	History  HistorySearcher
	DB       *database.DB
	MQTT     Dependency
	InfluxDB Dependency

	// Prometheus, if set, is served at /metrics/prometheus and fed with
	// request, login, session and batch counts.
	Prometheus *metrics.Collector

	// ExternalHub, if set, is used instead of creating a hub in Start.
	ExternalHub *Hub
	Version     string
}

// Server is the HTTP API server for the dryer terminal.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	sessions  *auth.SessionManager
	perms     *auth.PermissionModel
	monitor   *auth.ActivityMonitor
	batches   *batch.Lifecycle
	history   HistorySearcher
	db        *database.DB
	mqtt      Dependency
	influx    Dependency
	prom      *metrics.Collector
	version   string
	startTime time.Time

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. The hub is created
// here so it can be registered as a batch event sink before Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil || deps.Perms == nil {
		return nil, fmt.Errorf("session manager and permission model are required")
	}
	if deps.Batches == nil {
		return nil, fmt.Errorf("batch lifecycle is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		sessions:  deps.Sessions,
		perms:     deps.Perms,
		monitor:   deps.Monitor,
		batches:   deps.Batches,
		history:   deps.History,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		prom:      deps.Prometheus,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       deps.ExternalHub,
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	s.batches.AddSink(s.hub)
	if s.monitor != nil {
		s.monitor.OnForcedLogout(s.hub.ForcedLogout)
	}

	if s.prom != nil {
		s.batches.AddSink(s.prom)
		s.sessions.OnSessionEnd(s.prom.SessionEnded)
		hub := s.hub
		if err := s.prom.GaugeFunc("websocket", "clients", "Connected WebSocket clients", func() float64 {
			return float64(hub.ClientCount())
		}); err != nil {
			s.logger.Warn("websocket client gauge not registered", "error", err)
		}
	}

	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed HTTP handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

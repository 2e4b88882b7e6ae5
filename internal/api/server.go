package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/haunt-core/internal/controller"
	"github.com/nerrad567/haunt-core/internal/hardware"
	"github.com/nerrad567/haunt-core/internal/history"
	"github.com/nerrad567/haunt-core/internal/infrastructure/config"
	"github.com/nerrad567/haunt-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the part of *controller.Controller the API drives.
type Controller interface {
	Status() controller.Status
	Trigger(source string) (string, error)
	EmergencyStop(reason string) error
}

// Devices reports hardware availability. *hardware.Registry satisfies it.
type Devices interface {
	Status() []hardware.DeviceStatus
	Usable() bool
}

// HealthChecker is implemented by the optional infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Controller Controller
	Devices    Devices
	History    history.Repository       // nil when database.enabled is false
	Health     map[string]HealthChecker // name -> checker, e.g. "mqtt"
	Hub        *Hub                     // if set, used instead of creating one
	Version    string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	controller Controller
	devices    Devices
	history    history.Repository
	health     map[string]HealthChecker
	version    string
	hub        *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a server. It does not listen until Start.
//
// Returns:
//   - error: If the logger, controller or device registry is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		controller: deps.Controller,
		devices:    deps.Devices,
		history:    deps.History,
		health:     deps.Health,
		version:    deps.Version,
		hub:        deps.Hub,
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub, for wiring as a controller notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Binding happens
// before Start returns so a port conflict is reported to the caller.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.Read.Std(),
		ReadHeaderTimeout: s.cfg.Timeouts.Read.Std(),
		WriteTimeout:      s.cfg.Timeouts.Write.Std(),
		IdleTimeout:       s.cfg.Timeouts.Idle.Std(),
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server)

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and shuts the server down, waiting up to 10 seconds
// for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.listener, s.cancel = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server is listening.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.Addr() == "" {
		return fmt.Errorf("api server not started")
	}
	return nil
}

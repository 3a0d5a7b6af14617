package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-presence/internal/history"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-presence/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-presence/internal/presence"
	"github.com/nerrad567/gray-logic-presence/internal/router"
)

const shutdownGrace = 10 * time.Second

// Engine is the part of presence.Engine the API reads from.
type Engine interface {
	UniqueID() string
	DeviceInfo() router.DeviceInfo
	Devices() *presence.Registry
	Status() presence.Status
	TopicDeviceNew() string
	TopicDeviceUpdated() string
	SubscribeAsync(ctx context.Context, topic string, fn func()) (unsubscribe func())
	ScanNow(ctx context.Context) presence.ScanResult
}

// HistoryReader serves the per-device transition log.
type HistoryReader interface {
	GetHistory(ctx context.Context, mac string, limit int) ([]history.Entry, error)
}

// Deps wires the server. Logger and Engine are required.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   Engine
	History  HistoryReader // optional
	Metrics  http.Handler  // optional, mounted at /metrics
	Version  string
}

// Server serves the REST API and the WebSocket event stream.
type Server struct {
	cfg     config.APIConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	engine  Engine
	history HistoryReader
	metrics http.Handler
	version string
	hub     *Hub

	srv    *http.Server
	ln     net.Listener
	cancel context.CancelFunc
	unsub  []func()
}

// New validates deps. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("api: logger is required")
	case deps.Engine == nil:
		return nil, errors.New("api: presence engine is required")
	}

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		engine:  deps.Engine,
		history: deps.History,
		metrics: deps.Metrics,
		version: deps.Version,
		hub:     NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listener, so a port conflict is returned here, and then
// serves in the background. The hub and the engine relay live until Close
// or until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.cancel, s.ln = cancel, ln
	s.srv = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.ReadTimeout(),
		WriteTimeout:      s.cfg.WriteTimeout(),
		IdleTimeout:       s.cfg.IdleTimeout(),
		BaseContext:       func(net.Listener) context.Context { return runCtx },
	}

	go s.hub.Run(runCtx)
	s.relayEngineEvents(runCtx)

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server stopped", "error", err)
		}
	}()
	return nil
}

// Addr is the bound address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// relayEngineEvents rebroadcasts the registry on every engine signal.
// Async delivery keeps slow WebSocket clients off the scan path.
func (s *Server) relayEngineEvents(ctx context.Context) {
	relay := func(channel string) func() {
		return func() { s.hub.Broadcast(channel, s.devicesPayload()) }
	}
	s.unsub = append(s.unsub,
		s.engine.SubscribeAsync(ctx, s.engine.TopicDeviceUpdated(), relay(EventDeviceUpdated)),
		s.engine.SubscribeAsync(ctx, s.engine.TopicDeviceNew(), relay(EventDeviceNew)),
	)
}

// Close stops relaying, disconnects WebSocket clients and gives in-flight
// requests up to shutdownGrace to finish.
func (s *Server) Close() error {
	for _, unsub := range s.unsub {
		unsub()
	}
	s.unsub = nil
	if s.cancel != nil {
		s.cancel()
	}
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("API server shutting down")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck fails until Start has succeeded.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.srv == nil {
		return errors.New("api server not started")
	}
	return nil
}

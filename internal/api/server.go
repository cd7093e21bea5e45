// Package api serves micnode's local control and status surface: a small
// REST API, server-sent event streams, a websocket feed and /metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/micnode/internal/api/models"
	"github.com/smazurov/micnode/internal/app"
	"github.com/smazurov/micnode/internal/audio"
	"github.com/smazurov/micnode/internal/discovery"
	"github.com/smazurov/micnode/internal/events"
	"github.com/smazurov/micnode/internal/logging"
	"github.com/smazurov/micnode/internal/version"
)

// Controller is the main loop as seen by the API. *app.Runner implements it.
type Controller interface {
	Status(ctx context.Context) (app.Snapshot, error)
	Reconnect(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool) error
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	SelectDevice(ctx context.Context, name string, rate int) error
}

// DeviceLister enumerates recording devices. *audio.Sources implements it.
type DeviceLister interface {
	Devices() ([]string, error)
	Capabilities(device string) (audio.Capabilities, error)
}

// Options configures the server.
type Options struct {
	Controller Controller
	Devices    DeviceLister
	// EventBus feeds the event streams. Nil disables them.
	EventBus *events.Bus
	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler
	// StatusInterval paces status pushes on the websocket. Defaults to 3s.
	StatusInterval time.Duration
}

// Server is the HTTP API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	mu         sync.Mutex
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger

	// ctx ends websocket feeds and their commands on Stop; hijacked
	// connections are not covered by http.Server.Shutdown.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer builds the router. It does not listen until Start or Serve.
func NewServer(opts *Options) *Server {
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 3 * time.Second
	}
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("micnode API", version.Version)
	config.Info.Description = "Control and status of a wireless microphone client"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		api:      api,
		mux:      mux,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
		ctx:      ctx,
		cancel:   cancel,
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	mux.HandleFunc("GET /ws", server.handleWebSocket)

	server.registerRoutes()
	return server
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Stop. A stopped server returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Starting API server", "addr", ln.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+ln.Addr().String()+"/docs")

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down. Open streams are cut once ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("Stopping API server")
	if err := srv.Shutdown(ctx); err != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Tags:        []string{"system"},
	}, func(ctx context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get(discovery.ProtocolVersion)}, nil
	})

	s.registerStatusRoutes()
	s.registerDeviceRoutes()
	s.registerControlRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

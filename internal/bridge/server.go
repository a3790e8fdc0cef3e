// Package bridge serves the runtime over local HTTP: JSON endpoints for
// modules, presets and sessions plus server-sent event streams.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kingrea/focus/internal/broadcast"
	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/preset"
	"github.com/kingrea/focus/internal/service"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/sdk"
)

// Backend is the part of service.Service the bridge serves.
type Backend interface {
	ListModules() []service.ModuleInfo
	DiscoveryProblems() []error
	RefreshCatalog(ctx context.Context) error
	GetModuleSettings(ctx context.Context, moduleID string) ([]service.SettingView, error)
	InstanceSettings(instanceID string) ([]service.SettingView, error)
	InstanceActions(instanceID string) ([]sdk.Action, error)
	StartSession(ctx context.Context, presetID string) (*session.ActiveSession, error)
	StopSession(ctx context.Context) error
	SessionStatus() service.StatusView
	UpdateSetting(ctx context.Context, instanceID, key string, value sdk.Value) error
	UpdateSettingRaw(ctx context.Context, instanceID, key, raw string) error
	InvokeAction(ctx context.Context, instanceID, action string) error
	SubscribeSettings(instanceID string) eventbridge.Subscription[broadcast.SettingUpdate]
	SubscribeSessions() eventbridge.Subscription[session.Event]
	ListPresets() ([]preset.Preset, error)
	GetPreset(id string) (preset.Preset, error)
	SavePreset(p preset.Preset) (preset.Preset, error)
	DeletePreset(id string) error
	CapturePreset(id, name string) (preset.Preset, error)
}

var _ Backend = (*service.Service)(nil)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrDisabled is returned by Start when the bridge is switched off.
var ErrDisabled = errors.New("bridge: server disabled")

// Server wraps the HTTP listener and handlers backing the bridge.
type Server struct {
	settings  Settings
	backend   Backend
	log       zerolog.Logger
	sequencer *eventbridge.Sequencer
	heartbeat time.Duration

	mu        sync.RWMutex
	server    *http.Server
	listener  net.Listener
	status    ServerStatus
	startTime time.Time
	streams   context.CancelFunc
}

// Option customizes server construction.
type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

// WithHeartbeat sets how often idle streams receive a keep-alive comment.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// NewServer prepares a bridge server using the provided settings.
func NewServer(settings Settings, backend Backend, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings:  settings,
		backend:   backend,
		log:       zerolog.Nop(),
		sequencer: eventbridge.NewSequencer(),
		heartbeat: 15 * time.Second,
		status:    StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.log = s.log.With().Str("component", "bridge").Logger()
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /modules", s.handleListModules)
	mux.HandleFunc("POST /modules/refresh", s.handleRefresh)
	mux.HandleFunc("GET /modules/{id}/settings", s.handleModuleSettings)

	mux.HandleFunc("GET /presets", s.handleListPresets)
	mux.HandleFunc("POST /presets", s.handleSavePreset)
	mux.HandleFunc("GET /presets/{id}", s.handleGetPreset)
	mux.HandleFunc("DELETE /presets/{id}", s.handleDeletePreset)

	mux.HandleFunc("POST /sessions", s.handleStartSession)
	mux.HandleFunc("GET /sessions/current", s.handleSessionStatus)
	mux.HandleFunc("DELETE /sessions/current", s.handleStopSession)
	mux.HandleFunc("POST /sessions/current/capture", s.handleCapture)

	mux.HandleFunc("GET /instances/{id}/settings", s.handleInstanceSettings)
	mux.HandleFunc("PUT /instances/{id}/settings/{key}", s.handleUpdateSetting)
	mux.HandleFunc("GET /instances/{id}/actions", s.handleInstanceActions)
	mux.HandleFunc("POST /instances/{id}/actions/{key}", s.handleInvokeAction)

	mux.HandleFunc("GET /streams/settings", s.handleSettingsStream)
	mux.HandleFunc("GET /streams/sessions", s.handleSessionsStream)
	return chain(mux, s.withRecovery, s.withLogging)
}

// Start binds the TCP listener and begins serving HTTP traffic.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("bridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("bridge: server already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", addr, err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	base, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.streams = cancel
	s.startTime = time.Now()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return base },
	}
	s.server = server
	s.status = StatusReady
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("serve error")
		}
	}()
	s.log.Info().Str("addr", listener.Addr().String()).Msg("bridge listening")
	return nil
}

// Shutdown stops accepting new connections, ends open streams and waits for
// in-flight requests to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil || s.server == nil {
		return nil
	}
	s.status = StatusDraining
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	s.streams()
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.listener = nil
	s.server = nil
	return nil
}

// Addr returns the bound TCP address once the server has started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the HTTP base URL (scheme + host:port) for the running server.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(time.Since(s.startTime).Seconds())
}

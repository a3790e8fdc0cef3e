package bridge

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/focus/internal/config"
)

const (
	// DefaultMaxBodyBytes limits request payloads to 1 MB.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultReadTimeout guards hung clients.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds handler writes. Streams clear it.
	DefaultWriteTimeout = 15 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// Settings captures runtime configuration for the HTTP bridge.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig builds Settings from .focus/config.yaml. FOCUS_BRIDGE_*
// overrides are already folded into cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	settings := Settings{
		Enabled: true,
		Host:    config.DefaultBridgeHost,
		Port:    config.DefaultBridgePort,
	}
	if cfg != nil {
		settings.Enabled = cfg.BridgeEnabled()
		settings.Host = cfg.Project.Bridge.Host
		settings.Port = cfg.Project.Bridge.Port
	}
	settings.normalize()
	return settings
}

func (s *Settings) normalize() {
	s.Host = strings.TrimSpace(s.Host)
	if s.Host == "" {
		s.Host = config.DefaultBridgeHost
	}
	if s.Port < 0 || s.Port > 65535 {
		s.Port = config.DefaultBridgePort
	}
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}

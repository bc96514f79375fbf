package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/deepakpathik/deskbridge/internal/control"
	"github.com/deepakpathik/deskbridge/internal/media"
	"github.com/deepakpathik/deskbridge/internal/negotiation"
	"github.com/deepakpathik/deskbridge/internal/session"
)

// Default configuration values. Unset environment keys fall back to these.
const (
	DefaultRelayURL          = "ws://localhost:5001/ws"
	DefaultApprovalTimeout   = session.DefaultApprovalTimeout
	DefaultConnectTimeout    = session.DefaultConnectTimeout
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = time.Second
	DefaultRelayPort         = 5001
)

var ErrForceRelayWithoutTURN = negotiation.ErrRelayWithoutTURN

// environment is the client configuration read from the process environment.
type environment struct {
	RelayURL          string        `env:"DESKBRIDGE_RELAY_URL"`
	STUNServers       []string      `env:"STUN_SERVERS"         envSeparator:","`
	TURNServer        string        `env:"TURN_SERVER"`
	TURNUser          string        `env:"TURN_USERNAME"`
	TURNPass          string        `env:"TURN_PASSWORD"`
	ForceRelay        bool          `env:"FORCE_RELAY"`
	IDFile            string        `env:"DESKBRIDGE_ID_FILE"`
	ApprovalTimeout   time.Duration `env:"APPROVAL_TIMEOUT"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT"`
	ControlPath       string        `env:"CONTROL_PATH"`
	CaptureResolution string        `env:"CAPTURE_RESOLUTION"`
	CaptureFPS        int           `env:"CAPTURE_FPS"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY"`
}

// Options carries CLI flag overrides. Zero values fall through to the
// environment.
type Options struct {
	RelayURL    string
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	IDFile      string
	ControlPath string
	Resolution  string
	FPS         int
}

// Config holds the client configuration.
type Config struct {
	RelayURL string

	// ICE servers for WebRTC
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool

	// IDFile overrides where the device identifier is persisted.
	IDFile string

	ControlPath control.Path
	Capture     media.Hint

	ApprovalTimeout   time.Duration
	ConnectTimeout    time.Duration
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	var e environment
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	cfg := &Config{
		RelayURL:          first(opts.RelayURL, e.RelayURL, DefaultRelayURL),
		STUNServers:       e.STUNServers,
		TURNServer:        first(opts.TURNServer, e.TURNServer),
		TURNUser:          first(opts.TURNUser, e.TURNUser),
		TURNPass:          first(opts.TURNPass, e.TURNPass),
		ForceRelay:        opts.ForceRelay || e.ForceRelay,
		IDFile:            first(opts.IDFile, e.IDFile),
		ApprovalTimeout:   e.ApprovalTimeout,
		ConnectTimeout:    e.ConnectTimeout,
		ReconnectAttempts: e.ReconnectAttempts,
		ReconnectDelay:    e.ReconnectDelay,
	}
	if len(opts.STUNServers) > 0 {
		cfg.STUNServers = opts.STUNServers
	}

	path, err := control.ParsePath(first(opts.ControlPath, e.ControlPath))
	if err != nil {
		return nil, err
	}
	cfg.ControlPath = path

	fps := opts.FPS
	if fps == 0 {
		fps = e.CaptureFPS
	}
	if fps == 0 {
		fps = media.DefaultFPS
	}
	hint, err := media.ParseHint(first(opts.Resolution, e.CaptureResolution, media.DefaultResolution), fps)
	if err != nil {
		return nil, err
	}
	cfg.Capture = hint

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return fmt.Errorf("invalid relay url %q: %w", c.RelayURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid relay url %q: scheme must be ws or wss", c.RelayURL)
	}
	if c.TURNServer != "" && turnHost(c.TURNServer) == "" {
		return fmt.Errorf("invalid TURN server %q", c.TURNServer)
	}
	if err := c.Negotiation().Validate(); err != nil {
		return err
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = DefaultApprovalTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ReconnectAttempts <= 0 {
		c.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	return nil
}

// GetSTUNServers returns STUN server URLs, falling back to the public defaults.
func (c *Config) GetSTUNServers() []string {
	if len(c.STUNServers) == 0 {
		return negotiation.DefaultSTUNServers
	}
	return c.STUNServers
}

// GetTURNServers returns TURN server URLs if configured. The server may be
// given as a bare host or as a turn:/turns: URL; any port or query is
// replaced by the standard ones.
func (c *Config) GetTURNServers() []string {
	host := turnHost(c.TURNServer)
	if host == "" {
		return nil
	}
	plain := net.JoinHostPort(host, "3478")
	tls := net.JoinHostPort(host, "5349")
	return []string{
		"turn:" + plain + "?transport=udp",
		"turn:" + plain + "?transport=tcp",
		"turns:" + tls + "?transport=tcp",
	}
}

// turnHost extracts the host from a TURN server setting.
func turnHost(server string) string {
	host := strings.TrimSpace(server)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "turns:"), "turn:")
	if i := strings.IndexByte(host, '?'); i >= 0 {
		host = host[:i]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

// Negotiation returns the peer connection settings.
func (c *Config) Negotiation() negotiation.Config {
	return negotiation.Config{
		STUNServers:  c.GetSTUNServers(),
		TURNServers:  c.GetTURNServers(),
		TURNUsername: c.TURNUser,
		TURNPassword: c.TURNPass,
		ForceRelay:   c.ForceRelay,
	}
}

// Relay holds the relay server configuration.
type Relay struct {
	Port           int      `env:"PORT"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// RelayOptions carries relay flag overrides.
type RelayOptions struct {
	Port           int
	AllowedOrigins []string
}

// LoadRelay reads the relay configuration: flags, then environment, then defaults.
func LoadRelay(opts RelayOptions) (*Relay, error) {
	var r Relay
	if err := env.Parse(&r); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if opts.Port != 0 {
		r.Port = opts.Port
	}
	if r.Port == 0 {
		r.Port = DefaultRelayPort
	}
	if len(opts.AllowedOrigins) > 0 {
		r.AllowedOrigins = opts.AllowedOrigins
	}
	if r.Port <= 0 || r.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", r.Port)
	}
	return &r, nil
}

// Addr is the listen address.
func (r *Relay) Addr() string {
	return fmt.Sprintf(":%d", r.Port)
}

// Origins returns the allowed origins, or nil when any origin is accepted.
func (r *Relay) Origins() []string {
	var origins []string
	for _, o := range r.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

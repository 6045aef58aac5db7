package cratermcp

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pkt.systems/cratermcp/mcp"
	"pkt.systems/cratermcp/session"
)

const (
	// DefaultCraterURL is used when no Crater installation is configured.
	DefaultCraterURL = "http://localhost"
	// DefaultPort is the SSE port when neither a listen address nor PORT is set.
	DefaultPort = 3001
	// DefaultListen is the SSE listen address derived from DefaultPort.
	DefaultListen = mcp.DefaultListen
	// DefaultTransport is the MCP transport used when none is selected.
	DefaultTransport = mcp.TransportSSE
	// DefaultDeviceName is reported to Crater on login.
	DefaultDeviceName = session.DefaultDeviceName
	// DefaultHTTPTimeout bounds each Crater request.
	DefaultHTTPTimeout = session.DefaultHTTPTimeout
	// DefaultMetricsListen is empty so metrics stay off unless configured.
	DefaultMetricsListen = ""
	// DefaultPprofListen is empty so pprof stays off unless configured.
	DefaultPprofListen = ""
	// DefaultConfigFileName is the config file searched for when --config is omitted.
	DefaultConfigFileName = "config.yaml"
)

// Config is the complete process configuration assembled from flags,
// environment, and the optional config file.
type Config struct {
	CraterURL   string
	Email       string
	Password    string
	APIToken    string
	DeviceName  string
	HTTPTimeout time.Duration

	Transport string
	Listen    string
	// Port is used to build Listen when Listen is empty.
	Port     int
	MCPToken string

	OTLPEndpoint   string
	MetricsListen  string
	PprofListen    string
	RuntimeMetrics bool
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	c.CraterURL = strings.TrimRight(strings.TrimSpace(c.CraterURL), "/")
	if c.CraterURL == "" {
		c.CraterURL = DefaultCraterURL
	}
	u, err := url.Parse(c.CraterURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("config: crater url %q must be an absolute http or https URL", c.CraterURL)
	}
	if strings.TrimSpace(c.DeviceName) == "" {
		c.DeviceName = DefaultDeviceName
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	} else if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: http timeout must be > 0")
	}
	if (c.Email == "") != (c.Password == "") {
		return fmt.Errorf("config: crater email and password must be set together")
	}

	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}
	switch c.Transport {
	case mcp.TransportSSE, mcp.TransportStdio:
	default:
		return fmt.Errorf("config: transport must be %q or %q", mcp.TransportSSE, mcp.TransportStdio)
	}
	if strings.TrimSpace(c.Listen) == "" {
		port := c.Port
		if port == 0 {
			port = DefaultPort
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("config: port %d out of range", port)
		}
		c.Listen = net.JoinHostPort("", strconv.Itoa(port))
	}
	if c.RuntimeMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return fmt.Errorf("config: runtime metrics require metrics-listen")
	}
	return nil
}

// HasCredentials reports whether any Crater credential is configured.
func (c Config) HasCredentials() bool {
	return c.APIToken != "" || (c.Email != "" && c.Password != "")
}

// SessionConfig returns the Crater session settings.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		BaseURL:     c.CraterURL,
		Email:       c.Email,
		Password:    c.Password,
		StaticToken: c.APIToken,
		DeviceName:  c.DeviceName,
		HTTPTimeout: c.HTTPTimeout,
	}
}

// MCPConfig returns the gateway settings.
func (c Config) MCPConfig() mcp.Config {
	return mcp.Config{
		Transport:    c.Transport,
		Listen:       c.Listen,
		SharedSecret: c.MCPToken,
		Crater:       c.SessionConfig(),
	}
}

// TelemetryConfig returns the telemetry settings.
func (c Config) TelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint:   c.OTLPEndpoint,
		MetricsListen:  c.MetricsListen,
		PprofListen:    c.PprofListen,
		RuntimeMetrics: c.RuntimeMetrics,
	}
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.cratermcp), overridable with CRATER_MCP_CONFIG_DIR.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("CRATER_MCP_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cratermcp"), nil
}

// DefaultConfigPath returns DefaultConfigFileName inside DefaultConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}

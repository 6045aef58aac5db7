package cratermcp

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pkt.systems/cratermcp/mcp"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.CraterURL != DefaultCraterURL {
		t.Fatalf("expected crater url default, got %q", cfg.CraterURL)
	}
	if cfg.Listen != ":3001" {
		t.Fatalf("expected listen :3001, got %q", cfg.Listen)
	}
	if cfg.Transport != mcp.TransportSSE {
		t.Fatalf("expected sse transport, got %q", cfg.Transport)
	}
	if cfg.DeviceName != "mcp-server" {
		t.Fatalf("expected device name mcp-server, got %q", cfg.DeviceName)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.HasCredentials() {
		t.Fatal("expected no credentials")
	}
}

func TestConfigValidatePortBuildsListen(t *testing.T) {
	cfg := Config{Port: 8080}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Listen != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Listen)
	}

	cfg = Config{Port: 8080, Listen: "127.0.0.1:9000"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Fatalf("expected explicit listen to win, got %q", cfg.Listen)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "bad scheme", cfg: Config{CraterURL: "ftp://crater"}, want: "crater url"},
		{name: "relative url", cfg: Config{CraterURL: "crater.local"}, want: "crater url"},
		{name: "email without password", cfg: Config{Email: "a@example.com"}, want: "together"},
		{name: "unknown transport", cfg: Config{Transport: "grpc"}, want: "transport"},
		{name: "port out of range", cfg: Config{Port: 70000}, want: "port"},
		{name: "negative timeout", cfg: Config{HTTPTimeout: -time.Second}, want: "timeout"},
		{name: "runtime metrics without listener", cfg: Config{RuntimeMetrics: true}, want: "metrics-listen"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestConfigMCPConfig(t *testing.T) {
	cfg := Config{
		CraterURL: "https://crater.example.com/",
		Email:     "a@example.com",
		Password:  "pw",
		APIToken:  "tok",
		Transport: "STDIO",
		MCPToken:  "s3cret",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	mc := cfg.MCPConfig()
	if mc.Transport != mcp.TransportStdio || mc.SharedSecret != "s3cret" {
		t.Fatalf("unexpected mcp config %+v", mc)
	}
	if mc.Crater.BaseURL != "https://crater.example.com" || mc.Crater.StaticToken != "tok" || mc.Crater.Email != "a@example.com" {
		t.Fatalf("unexpected session config %+v", mc.Crater)
	}
	if !cfg.HasCredentials() {
		t.Fatal("expected credentials")
	}
}

func TestDefaultConfigDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CRATER_MCP_CONFIG_DIR", dir)
	got, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("default config dir: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %q, got %q", dir, got)
	}
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != filepath.Join(dir, DefaultConfigFileName) {
		t.Fatalf("unexpected config path %q", path)
	}
}

func TestDefaultConfigDirHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("CRATER_MCP_CONFIG_DIR", "")
	t.Setenv("HOME", home)
	got, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("default config dir: %v", err)
	}
	if got != filepath.Join(home, ".cratermcp") {
		t.Fatalf("unexpected dir %q", got)
	}
}

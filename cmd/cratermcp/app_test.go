package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/cratermcp/internal/version"
	"pkt.systems/pslog"
)

func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for _, env := range []string{
		"PORT", "MCP_SERVER_TOKEN", "CRATER_URL", "CRATER_EMAIL", "CRATER_PASSWORD",
		"CRATER_API_TOKEN", "CRATER_MCP_TRANSPORT", "CRATER_MCP_CONFIG", "CRATER_MCP_LISTEN",
	} {
		t.Setenv(env, "")
	}
	t.Setenv("CRATER_MCP_CONFIG_DIR", t.TempDir())
	return newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
}

func executeRootCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newTestRoot(t)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvocationTargetsRootCommand(t *testing.T) {
	root := newRootCommand(pslog.NewStructured(context.Background(), io.Discard))
	cases := []struct {
		name string
		args []string
		want bool
	}{
		{name: "no args", args: nil, want: true},
		{name: "root flag only", args: []string{"--crater-url", "https://crater.example.com"}, want: true},
		{name: "root bool flag", args: []string{"--stdio"}, want: true},
		{name: "root shorthand with value", args: []string{"-c", "/tmp/cfg.yaml"}, want: true},
		{name: "assignment form", args: []string{"--port=4000"}, want: true},
		{name: "subcommand", args: []string{"tools"}, want: false},
		{name: "subcommand after root flag", args: []string{"--config", "/tmp/cfg.yaml", "login"}, want: false},
		{name: "bool flag before subcommand", args: []string{"--stdio", "version"}, want: false},
		{name: "unknown shorthand no subcommand", args: []string{"-z"}, want: true},
		{name: "unknown long before subcommand", args: []string{"--bogus", "config", "gen"}, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := invocationTargetsRootCommand(root, tc.args)
			if got != tc.want {
				t.Fatalf("invocationTargetsRootCommand(%v)=%v want %v", tc.args, got, tc.want)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeRootCommand(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	want := version.Module() + " " + version.Current() + "\n"
	if out != want {
		t.Fatalf("expected %q, got %q", want, out)
	}
}

func TestConfigFromViperFlagsAndEnv(t *testing.T) {
	root := newTestRoot(t)
	t.Setenv("PORT", "4000")
	t.Setenv("MCP_SERVER_TOKEN", " s3cret ")
	if err := root.ParseFlags([]string{"--crater-url", "https://crater.example.com/", "--crater-api-token", "tok"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := configFromViper()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Listen != ":4000" {
		t.Fatalf("expected listen from PORT, got %q", cfg.Listen)
	}
	if cfg.MCPToken != "s3cret" {
		t.Fatalf("expected trimmed token, got %q", cfg.MCPToken)
	}
	if cfg.CraterURL != "https://crater.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.CraterURL)
	}
	if cfg.Transport != "sse" || !cfg.HasCredentials() {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromViperStdioFlag(t *testing.T) {
	root := newTestRoot(t)
	if err := root.ParseFlags([]string{"--stdio"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	cfg, err := configFromViper()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.Transport != "stdio" {
		t.Fatalf("expected stdio transport, got %q", cfg.Transport)
	}
}

func TestConfigFromViperRejectsHalfCredentials(t *testing.T) {
	root := newTestRoot(t)
	if err := root.ParseFlags([]string{"--crater-email", "admin@example.com"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := configFromViper(); err == nil {
		t.Fatalf("expected error for email without password")
	}
}

func TestLoadConfigFile(t *testing.T) {
	root := newTestRoot(t)
	path := filepath.Join(t.TempDir(), "cratermcp.yaml")
	doc := "crater:\n  url: http://crater.test\n  http_timeout: 5s\nmcp:\n  token: from-file\n  port: 4100\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := root.ParseFlags([]string{"--config", path}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	loaded, err := loadConfigFile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != path {
		t.Fatalf("expected %q, got %q", path, loaded)
	}
	cfg, err := configFromViper()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.CraterURL != "http://crater.test" || cfg.MCPToken != "from-file" || cfg.Listen != ":4100" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.HTTPTimeout.String() != "5s" {
		t.Fatalf("expected 5s timeout, got %s", cfg.HTTPTimeout)
	}
}

func TestLoadConfigFileMissingExplicitPath(t *testing.T) {
	root := newTestRoot(t)
	if err := root.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := loadConfigFile(); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadConfigFileWithoutDefaultIsNoop(t *testing.T) {
	newTestRoot(t)
	loaded, err := loadConfigFile()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != "" {
		t.Fatalf("expected no config file, got %q", loaded)
	}
}

func TestToolsCommandFormats(t *testing.T) {
	out, err := executeRootCommand(t, "tools")
	if err != nil {
		t.Fatalf("tools: %v", err)
	}
	var resp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(resp.Result.Tools) != 25 {
		t.Fatalf("expected 25 tools, got %d", len(resp.Result.Tools))
	}

	out, err = executeRootCommand(t, "tools", "--format", "yaml")
	if err != nil {
		t.Fatalf("tools yaml: %v", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if !strings.Contains(out, "name: create_customer") {
		t.Fatalf("expected create_customer in yaml output")
	}

	if _, err := executeRootCommand(t, "tools", "--format", "xml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestConfigGenStdout(t *testing.T) {
	out, err := executeRootCommand(t, "config", "gen", "--stdout")
	if err != nil {
		t.Fatalf("config gen: %v", err)
	}
	var doc configDefaults
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.MCP.Transport != "sse" || doc.MCP.Port != 3001 || doc.Crater.URL != "http://localhost" {
		t.Fatalf("unexpected defaults %+v", doc)
	}
}

func TestConfigGenWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := executeRootCommand(t, "config", "gen", "--out", path); err != nil {
		t.Fatalf("config gen: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
	if _, err := executeRootCommand(t, "config", "gen", "--out", path); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := executeRootCommand(t, "config", "gen", "--out", path, "--force"); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
	if _, err := executeRootCommand(t, "config", "gen", "--out", path, "--stdout"); err == nil {
		t.Fatalf("expected --out and --stdout to conflict")
	}
}

func TestLoginCommand(t *testing.T) {
	var logins, settings atomic.Int32
	crater := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/auth/login":
			logins.Add(1)
			_, _ = w.Write([]byte(`{"type":"Bearer","token":"tok-1"}`))
		case "/api/v1/settings":
			settings.Add(1)
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"currency":{"code":"USD"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer crater.Close()

	out, err := executeRootCommand(t, "login",
		"--crater-url", crater.URL,
		"--crater-email", "admin@example.com",
		"--crater-password", "secret",
	)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logins.Load() != 1 || settings.Load() != 1 {
		t.Fatalf("expected one login and one settings call, got %d and %d", logins.Load(), settings.Load())
	}
	for _, want := range []string{"session:  authenticated", "method:   password (admin@example.com)", "currency: USD"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestLoginCommandRequiresCredentials(t *testing.T) {
	_, err := executeRootCommand(t, "login", "--crater-url", "http://crater.test")
	if err == nil || !strings.Contains(err.Error(), "no Crater credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestSettingsCurrency(t *testing.T) {
	tests := map[string]string{
		`{"currency":"EUR"}`:           "EUR",
		`{"currency":{"code":"SEK"}}`:  "SEK",
		`{"invoice_prefix":"INV"}`:     "",
		`not json`:                     "",
		`{"currency":{"name":"Euro"}}`: "",
	}
	for raw, want := range tests {
		if got := settingsCurrency(json.RawMessage(raw)); got != want {
			t.Fatalf("settingsCurrency(%s)=%q want %q", raw, got, want)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := expandPath("~/cratermcp/config.yaml")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if want := filepath.Join(home, "cratermcp", "config.yaml"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got, _ := expandPath(""); got != "" {
		t.Fatalf("expected empty path to stay empty, got %q", got)
	}
}

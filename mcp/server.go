package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/cratermcp/client"
	"pkt.systems/cratermcp/internal/svcfields"
	"pkt.systems/cratermcp/internal/version"
	"pkt.systems/cratermcp/session"
	"pkt.systems/pslog"
)

// Transport names accepted by Config.Transport.
const (
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// DefaultListen is the SSE listen address when none is configured.
const DefaultListen = ":3001"

const shutdownTimeout = 10 * time.Second

// Config controls Crater MCP server runtime behavior.
type Config struct {
	// Transport selects "sse" (default) or "stdio".
	Transport string
	// Listen is the SSE listen address.
	Listen string
	// SharedSecret guards the SSE endpoints. Empty disables the check.
	SharedSecret string
	// Crater carries the upstream URL and credentials.
	Crater session.Config
}

// Server is the MCP gateway service contract.
type Server interface {
	Run(context.Context) error
	// SetSharedSecret replaces the gateway secret without a restart.
	SetSharedSecret(string)
	// Handler returns the SSE HTTP handler tree.
	Handler() http.Handler
}

// NewServerRequest wraps constructor inputs.
type NewServerRequest struct {
	Config Config
	Logger pslog.Logger
	// HTTPClient overrides the client used for Crater calls and logins.
	HTTPClient *http.Client
}

type server struct {
	cfg          Config
	logger       pslog.Logger
	lifecycleLog pslog.Logger
	transportLog pslog.Logger
	secret       *SharedSecret
	dispatcher   *Dispatcher
	mcpSrv       *mcpsdk.Server
	handler      http.Handler
	httpServer   *http.Server
}

// NewServer constructs the Crater MCP gateway.
func NewServer(req NewServerRequest) (Server, error) {
	cfg := req.Config
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logger := req.Logger
	if logger == nil {
		logger = pslog.NewStructured(context.Background(), os.Stderr).With("app", "cratermcp")
	}

	sessOpts := []session.Option{session.WithLogger(logger)}
	cliOpts := []client.Option{
		client.WithLogger(logger),
		client.WithHTTPTimeout(cfg.Crater.HTTPTimeout),
		client.WithUserAgent(version.UserAgent()),
	}
	if req.HTTPClient != nil {
		sessOpts = append(sessOpts, session.WithHTTPClient(req.HTTPClient))
		cliOpts = append(cliOpts, client.WithHTTPClient(req.HTTPClient))
	}
	sess, err := session.New(cfg.Crater, sessOpts...)
	if err != nil {
		return nil, err
	}
	cli, err := client.New("", sess, cliOpts...)
	if err != nil {
		return nil, err
	}

	s := &server{
		cfg:          cfg,
		logger:       logger,
		lifecycleLog: svcfields.WithSubsystem(logger, svcfields.Lifecycle),
		transportLog: svcfields.WithSubsystem(logger, svcfields.TransportHTTP),
		secret:       NewSharedSecret(cfg.SharedSecret),
		dispatcher:   NewDispatcher(NewRegistry(cli), logger),
	}
	s.mcpSrv = newMCPServer(s.dispatcher)
	s.handler = s.buildMux()
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func applyDefaults(cfg *Config) {
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	if cfg.Transport == "" {
		cfg.Transport = TransportSSE
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = DefaultListen
	}
	if strings.TrimSpace(cfg.Crater.BaseURL) == "" {
		cfg.Crater.BaseURL = "http://localhost"
	}
	if cfg.Crater.DeviceName == "" {
		cfg.Crater.DeviceName = session.DefaultDeviceName
	}
	if cfg.Crater.HTTPTimeout <= 0 {
		cfg.Crater.HTTPTimeout = session.DefaultHTTPTimeout
	}
}

func validateConfig(cfg Config) error {
	switch cfg.Transport {
	case TransportSSE, TransportStdio:
	default:
		return fmt.Errorf("mcp: unsupported transport %q (want %s or %s)", cfg.Transport, TransportSSE, TransportStdio)
	}
	if cfg.Transport == TransportSSE && strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("mcp: listen address required for %s transport", TransportSSE)
	}
	return nil
}

func newMCPServer(d *Dispatcher) *mcpsdk.Server {
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "crater-mcp-server",
		Version: version.Current(),
	}, &mcpsdk.ServerOptions{
		Instructions: defaultServerInstructions(),
	})
	for _, spec := range d.Registry().specs() {
		name := spec.name
		srv.AddTool(&mcpsdk.Tool{
			Name:        name,
			Description: spec.description,
			InputSchema: spec.schema,
		}, func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
			return d.Dispatch(ctx, name, req.Params.Arguments)
		})
	}
	return srv
}

func (s *server) SetSharedSecret(value string) {
	wasEnabled := s.secret.Enabled()
	s.secret.Set(value)
	s.transportLog.Info("mcp.transport.secret.updated", "enabled", s.secret.Enabled(), "was_enabled", wasEnabled)
}

func (s *server) Handler() http.Handler { return s.handler }

func (s *server) Run(ctx context.Context) error {
	if s.cfg.Transport == TransportStdio {
		return s.runStdio(ctx)
	}
	return s.runSSE(ctx)
}

func (s *server) runStdio(ctx context.Context) error {
	s.lifecycleLog.Info("starting crater MCP server", "transport", TransportStdio, "crater_url", s.cfg.Crater.BaseURL, "tools", s.dispatcher.Registry().Len())
	err := s.mcpSrv.Run(ctx, &mcpsdk.StdioTransport{})
	if err == nil || errors.Is(err, context.Canceled) {
		s.lifecycleLog.Info("crater MCP server stopped", "transport", TransportStdio)
		return nil
	}
	return fmt.Errorf("run mcp stdio server: %w", err)
}

func (s *server) runSSE(ctx context.Context) error {
	s.lifecycleLog.Info("starting crater MCP server", "transport", TransportSSE, "listen", s.cfg.Listen, "crater_url", s.cfg.Crater.BaseURL, "tools", s.dispatcher.Registry().Len())
	if !s.secret.Enabled() {
		s.lifecycleLog.Warn("mcp.transport.secret.disabled", "detail", "no MCP server token configured; SSE endpoints accept unauthenticated requests")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.lifecycleLog.Info("crater MCP server stopped", "transport", TransportSSE)
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
}

func (s *server) buildMux() http.Handler {
	sse := mcpsdk.NewSSEHandler(func(_ *http.Request) *mcpsdk.Server {
		return s.mcpSrv
	}, nil)
	guarded := requireSharedSecret(s.secret, s.transportLog, newTransportMetrics(s.transportLog), sse)

	mux := http.NewServeMux()
	mux.Handle("GET /sse", otelhttp.NewHandler(guarded, "mcp.sse"))
	mux.Handle("POST /sse", otelhttp.NewHandler(guarded, "mcp.sse.message"))
	mux.Handle("POST /messages", otelhttp.NewHandler(guarded, "mcp.messages"))
	mux.HandleFunc("GET /healthz", handleHealthz)
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

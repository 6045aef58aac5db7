package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"pkt.systems/cratermcp/session"
)

type headerTransport struct {
	header string
	value  string
	base   http.RoundTripper
}

func (h headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set(h.header, h.value)
	return h.base.RoundTrip(clone)
}

func newTestGateway(t *testing.T, secret string, fake *fakeCrater) (Server, *httptest.Server) {
	t.Helper()
	crater := httptest.NewServer(fake)
	t.Cleanup(crater.Close)
	cfg := testCredentials
	cfg.BaseURL = crater.URL
	srv, err := NewServer(NewServerRequest{
		Config: Config{
			SharedSecret: secret,
			Crater:       cfg,
		},
		HTTPClient: crater.Client(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	gateway := httptest.NewServer(srv.Handler())
	t.Cleanup(gateway.Close)
	return srv, gateway
}

func TestSharedSecretMatches(t *testing.T) {
	t.Parallel()

	var zero SharedSecret
	if zero.Enabled() || !zero.Matches("") || !zero.Matches("anything") {
		t.Fatalf("zero secret must accept everything")
	}
	s := NewSharedSecret(" s3cret ")
	if !s.Enabled() {
		t.Fatalf("expected secret enabled")
	}
	if !s.Matches("s3cret") {
		t.Fatalf("expected trimmed secret to match")
	}
	for _, wrong := range []string{"", "s3cre", "s3cret2", "S3CRET"} {
		if s.Matches(wrong) {
			t.Fatalf("expected %q to be rejected", wrong)
		}
	}
	s.Set("")
	if s.Enabled() {
		t.Fatalf("expected secret disabled after reset")
	}
}

func TestPresentedToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{name: "bare authorization", headers: map[string]string{"Authorization": "abc"}, want: "abc"},
		{name: "bearer authorization", headers: map[string]string{"Authorization": "Bearer abc"}, want: "abc"},
		{name: "lowercase bearer", headers: map[string]string{"Authorization": "bearer abc"}, want: "abc"},
		{name: "mcp token header", headers: map[string]string{"X-MCP-Token": "abc"}, want: "abc"},
		{name: "bearer mcp token header", headers: map[string]string{"X-MCP-Token": "Bearer abc"}, want: "abc"},
		{name: "authorization wins", headers: map[string]string{"Authorization": "one", "X-MCP-Token": "two"}, want: "one"},
		{name: "none", headers: nil, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/sse", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := presentedToken(req); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestGatewayRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	fake := &fakeCrater{}
	_, gateway := newTestGateway(t, "s3cret", fake)

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
	}{
		{name: "missing on stream", method: http.MethodGet, path: "/sse"},
		{name: "wrong on stream", method: http.MethodGet, path: "/sse", headers: map[string]string{"Authorization": "Bearer nope"}},
		{name: "wrong mcp token on messages", method: http.MethodPost, path: "/messages?sessionid=x", headers: map[string]string{"X-MCP-Token": "nope"}},
		{name: "missing on sse post", method: http.MethodPost, path: "/sse?sessionid=x"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, gateway.URL+tc.path, strings.NewReader(`{}`))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			resp, err := gateway.Client().Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != "Unauthorized: Invalid MCP Server Token" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
	if got := len(fake.recorded()); got != 0 {
		t.Fatalf("expected no dispatch, got %d crater calls", got)
	}
}

func TestGatewayAcceptsSecretWithOrWithoutBearer(t *testing.T) {
	t.Parallel()

	_, gateway := newTestGateway(t, "s3cret", &fakeCrater{})

	for _, value := range []string{"s3cret", "Bearer s3cret"} {
		for _, header := range []string{"Authorization", "X-MCP-Token"} {
			req, err := http.NewRequest(http.MethodPost, gateway.URL+"/messages", strings.NewReader(`{}`))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			req.Header.Set(header, value)
			resp, err := gateway.Client().Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				t.Fatalf("%s: %q was rejected", header, value)
			}
		}
	}
}

func TestGatewayHealthzIsUnauthenticated(t *testing.T) {
	t.Parallel()

	_, gateway := newTestGateway(t, "s3cret", &fakeCrater{})
	resp, err := gateway.Client().Get(gateway.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGatewaySecretCanBeReplaced(t *testing.T) {
	t.Parallel()

	srv, gateway := newTestGateway(t, "old", &fakeCrater{})
	srv.SetSharedSecret("new")

	status := func(token string) int {
		req, _ := http.NewRequest(http.MethodPost, gateway.URL+"/messages", strings.NewReader(`{}`))
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := gateway.Client().Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if got := status("old"); got != http.StatusUnauthorized {
		t.Fatalf("expected old secret rejected, got %d", got)
	}
	if got := status("new"); got == http.StatusUnauthorized {
		t.Fatalf("expected new secret accepted")
	}
}

func TestGatewaySSEEndToEnd(t *testing.T) {
	t.Parallel()

	fake := &fakeCrater{handler: func(w http.ResponseWriter, _ *http.Request, _ craterCall) {
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Acme"}]}`))
	}}
	_, gateway := newTestGateway(t, "s3cret", fake)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	transport := &mcpsdk.SSEClientTransport{
		Endpoint: gateway.URL + "/sse",
		HTTPClient: &http.Client{Transport: headerTransport{
			header: "Authorization",
			value:  "Bearer s3cret",
			base:   http.DefaultTransport,
		}},
	}
	cs, err := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0"}, nil).Connect(ctx, transport, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer cs.Close()

	list, err := cs.ListTools(ctx, &mcpsdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(list.Tools) != len(mcpToolNames) {
		t.Fatalf("expected %d tools, got %d", len(mcpToolNames), len(list.Tools))
	}

	res, err := cs.CallTool(ctx, &mcpsdk.CallToolParams{Name: toolListCustomers, Arguments: map[string]any{"query": "Acme"}})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success, got %+v", res.Content)
	}
	calls := fake.recorded()
	if len(calls) != 1 || calls[0].Path != "/api/v1/customers" {
		t.Fatalf("unexpected crater calls %+v", calls)
	}
}

func TestNewServerUsesSessionDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Crater: session.Config{}}
	applyDefaults(&cfg)
	if cfg.Crater.BaseURL != "http://localhost" {
		t.Fatalf("expected default crater url, got %q", cfg.Crater.BaseURL)
	}
	if cfg.Crater.DeviceName != session.DefaultDeviceName {
		t.Fatalf("expected default device name, got %q", cfg.Crater.DeviceName)
	}
}

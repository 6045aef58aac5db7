package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pkt.systems/cratermcp/internal/svcfields"
	"pkt.systems/cratermcp/internal/version"
	"pkt.systems/cratermcp/session"
	"pkt.systems/pslog"
)

const (
	// DefaultHTTPTimeout bounds a single Crater operation including the
	// re-login and replay after a 401.
	DefaultHTTPTimeout = 30 * time.Second

	apiPrefix = "/api/v1"
)

// Client calls the Crater REST API on behalf of a session.
type Client struct {
	baseURL     string
	session     *session.Manager
	httpClient  *http.Client
	httpTimeout time.Duration
	userAgent   string
	logger      pslog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient supplies a custom HTTP client. Its transport is used as-is,
// so wrap it with otelhttp yourself if you want client spans.
func WithHTTPClient(cli *http.Client) Option {
	return func(c *Client) {
		if cli != nil {
			c.httpClient = cli
		}
	}
}

// WithLogger supplies a logger for client diagnostics.
// Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Logger) Option {
	return func(c *Client) {
		c.logger = svcfields.WithSubsystem(logger, svcfields.ClientHTTP)
	}
}

// WithHTTPTimeout bounds each operation. Non-positive values disable the
// client-side deadline.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpTimeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// New constructs a Client for the Crater installation at baseURL. sess
// provides and refreshes the bearer token.
func New(baseURL string, sess *session.Manager, opts ...Option) (*Client, error) {
	if sess == nil {
		return nil, fmt.Errorf("client: session required")
	}
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = sess.BaseURL()
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	c := &Client{
		baseURL:     trimmed,
		session:     sess,
		httpTimeout: DefaultHTTPTimeout,
		userAgent:   version.UserAgent(),
		logger:      svcfields.WithSubsystem(nil, svcfields.ClientHTTP),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return c, nil
}

// Session returns the session the client authorizes with.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Settings fetches the company settings.
func (c *Client) Settings(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, apiPrefix+"/settings", nil, nil)
}

func (c *Client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.httpTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, c.httpTimeout)
}

// do performs one logical operation: authenticate, send, apply the 401 retry
// policy, and return the body unchanged.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cid := ensureCorrelationID(ctx)
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.session.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var bodyBytes []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("crater: encode %s %s: %w", method, path, err)
		}
		bodyBytes = encoded
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	send := func(ctx context.Context, token string) (*http.Response, error) {
		var body io.Reader
		if bodyBytes != nil {
			body = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if bodyBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set(headerCorrelationID, cid)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return c.httpClient.Do(req)
	}

	start := time.Now()
	c.logTraceCtx(ctx, "client.http.request.start", "method", method, "path", path)
	token := c.session.Token()
	resp, err := send(ctx, token)
	budget := session.NewRetryBudget()
	for err == nil && resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp)
		c.logDebugCtx(ctx, "client.http.request.unauthorized", "method", method, "path", path, "retries_left", budget.Remaining())
		stale := token
		resp, err = c.session.HandleUnauthorized(ctx, budget, stale, func(ctx context.Context, fresh string) (*http.Response, error) {
			token = fresh
			return send(ctx, fresh)
		})
	}
	if err != nil {
		var authErr *session.AuthenticationError
		var cfgErr *session.ConfigurationError
		if errors.As(err, &authErr) || errors.As(err, &cfgErr) {
			c.logWarnCtx(ctx, "client.http.request.auth_error", "method", method, "path", path, "error", err)
			return nil, err
		}
		c.logErrorCtx(ctx, "client.http.request.transport_error", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("crater: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("crater: read %s %s response: %w", method, path, err)
	}
	elapsed := time.Since(start)
	if resp.StatusCode >= 300 {
		c.logWarnCtx(ctx, "client.http.request.error", "method", method, "path", path, "status", resp.StatusCode, "elapsed", elapsed)
		return nil, newRemoteError(method, path, resp.StatusCode, data)
	}
	c.logDebugCtx(ctx, "client.http.request.success",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"size", humanize.Bytes(uint64(len(data))),
		"elapsed", elapsed,
	)
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(data) {
		return nil, &RemoteError{Method: method, Path: path, Status: resp.StatusCode, Message: "response body is not valid JSON", Body: data}
	}
	return json.RawMessage(data), nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func (c *Client) enrichKeyvals(ctx context.Context, keyvals []any) []any {
	cid := CorrelationIDFromContext(ctx)
	if cid == "" {
		return keyvals
	}
	enriched := make([]any, 0, len(keyvals)+2)
	enriched = append(enriched, keyvals...)
	return append(enriched, "cid", cid)
}

func (c *Client) logTraceCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Trace(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logDebugCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Debug(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logWarnCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Warn(msg, c.enrichKeyvals(ctx, keyvals)...)
}

func (c *Client) logErrorCtx(ctx context.Context, msg string, keyvals ...any) {
	c.logger.Error(msg, c.enrichKeyvals(ctx, keyvals)...)
}

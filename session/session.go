package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"

	"pkt.systems/cratermcp/internal/svcfields"
	"pkt.systems/pslog"
)

const (
	// DefaultDeviceName is sent as device_name when logging in.
	DefaultDeviceName = "mcp-server"
	// DefaultHTTPTimeout bounds the login round-trip.
	DefaultHTTPTimeout = 30 * time.Second
	// DefaultAuthRetries is the number of re-logins permitted per request
	// after the Crater API answers 401.
	DefaultAuthRetries = 1

	loginPath = "/api/v1/auth/login"
)

// State describes where a Manager is in its token lifecycle.
type State int32

const (
	// StateUnauthenticated means no token is held yet.
	StateUnauthenticated State = iota
	// StateAuthenticating means the first login is in flight.
	StateAuthenticating
	// StateAuthenticated means a token is held and believed valid.
	StateAuthenticated
	// StateReauthenticating means a rejected token is being replaced.
	StateReauthenticating
	// StateFailed means the last login attempt failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateReauthenticating:
		return "reauthenticating"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config carries the connection settings and credentials for a Manager.
type Config struct {
	// BaseURL is the Crater installation root, e.g. https://crater.example.com.
	BaseURL string
	// Email and Password enable login and transparent re-login.
	Email    string
	Password string
	// StaticToken is a pre-issued bearer token. Without Email and Password it
	// is used as-is and cannot be refreshed.
	StaticToken string
	// DeviceName is reported to Crater on login. Defaults to DefaultDeviceName.
	DeviceName string
	// HTTPTimeout bounds each login request. Defaults to DefaultHTTPTimeout.
	HTTPTimeout time.Duration
}

// Option customises a Manager.
type Option func(*Manager)

// WithHTTPClient supplies the HTTP client used for login requests.
func WithHTTPClient(cli *http.Client) Option {
	return func(m *Manager) {
		if cli != nil {
			m.httpClient = cli
		}
	}
}

// WithLogger supplies a logger. Passing nil falls back to pslog.NoopLogger().
func WithLogger(logger pslog.Logger) Option {
	return func(m *Manager) {
		m.logger = svcfields.WithSubsystem(logger, svcfields.SessionAuth)
	}
}

// Replay re-issues a request that was rejected with 401, authorized with
// token.
type Replay func(ctx context.Context, token string) (*http.Response, error)

// RetryBudget counts the re-logins one logical request may still trigger.
// A budget is owned by a single request and is not safe for concurrent use.
type RetryBudget struct {
	remaining int
}

// NewRetryBudget returns a budget holding DefaultAuthRetries re-logins.
func NewRetryBudget() *RetryBudget {
	return &RetryBudget{remaining: DefaultAuthRetries}
}

// Remaining reports how many re-logins are left.
func (b *RetryBudget) Remaining() int {
	if b == nil {
		return 0
	}
	return b.remaining
}

func (b *RetryBudget) take() bool {
	if b == nil || b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}

// Manager holds the current Crater token and performs logins.
type Manager struct {
	baseURL     string
	email       string
	password    string
	staticToken string
	deviceName  string
	httpTimeout time.Duration
	httpClient  *http.Client
	logger      pslog.Logger
	metrics     *sessionMetrics

	mu    sync.RWMutex
	token string
	state State

	logins singleflight.Group
}

// New validates cfg and returns a Manager. A configured static token becomes
// the current token immediately. Missing credentials are not an error here;
// they surface as a ConfigurationError from the first Login.
func New(cfg Config, opts ...Option) (*Manager, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("session: base URL required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("session: base URL %q must use http or https", baseURL)
	}
	m := &Manager{
		baseURL:     baseURL,
		email:       strings.TrimSpace(cfg.Email),
		password:    cfg.Password,
		staticToken: strings.TrimSpace(cfg.StaticToken),
		deviceName:  strings.TrimSpace(cfg.DeviceName),
		httpTimeout: cfg.HTTPTimeout,
		logger:      svcfields.WithSubsystem(nil, svcfields.SessionAuth),
	}
	if m.deviceName == "" {
		m.deviceName = DefaultDeviceName
	}
	if m.httpTimeout <= 0 {
		m.httpTimeout = DefaultHTTPTimeout
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.httpClient == nil {
		m.httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	m.metrics = newSessionMetrics(m.logger)
	if m.staticToken != "" {
		m.token = m.staticToken
		m.state = StateAuthenticated
	}
	return m, nil
}

// BaseURL returns the normalized Crater base URL.
func (m *Manager) BaseURL() string {
	return m.baseURL
}

// Token returns the current bearer token or "" when none is held.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Authorize sets the Authorization header on req when a token is held and
// returns the token that was applied.
func (m *Manager) Authorize(req *http.Request) string {
	token := m.Token()
	if req != nil && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return token
}

// EnsureAuthenticated logs in when no token is currently held.
func (m *Manager) EnsureAuthenticated(ctx context.Context) error {
	if m.Token() != "" {
		return nil
	}
	return m.Login(ctx)
}

// Login obtains a token. Concurrent callers share one login round-trip, which
// is detached from any single caller's cancellation and bounded by the HTTP
// timeout instead. A caller whose ctx ends stops waiting without affecting the
// others. Failures are returned to the caller and never retried here.
func (m *Manager) Login(ctx context.Context) error {
	ch := m.logins.DoChan("login", func() (any, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.httpTimeout)
		defer cancel()
		return nil, m.login(loginCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUnauthorized applies the retry policy to a request that was answered
// with 401 while carrying stale. When budget is spent it returns an
// AuthenticationError. Otherwise it re-logs-in, unless another caller already
// replaced stale, and replays the request once with the current token.
func (m *Manager) HandleUnauthorized(ctx context.Context, budget *RetryBudget, stale string, replay Replay) (*http.Response, error) {
	if replay == nil {
		return nil, fmt.Errorf("session: replay function required")
	}
	if !budget.take() {
		m.metrics.recordExhausted(ctx)
		m.logger.Warn("session.unauthorized.exhausted", "state", m.State().String())
		return nil, &AuthenticationError{
			Status: http.StatusUnauthorized,
			Reason: "Crater API rejected the refreshed token",
		}
	}
	current := m.Token()
	if current == "" || current == stale {
		m.logger.Info("session.unauthorized.relogin")
		if err := m.Login(ctx); err != nil {
			return nil, err
		}
		current = m.Token()
	} else {
		m.logger.Debug("session.unauthorized.token_already_refreshed")
	}
	return replay(ctx, current)
}

func (m *Manager) login(ctx context.Context) error {
	if m.email == "" || m.password == "" {
		return m.adoptStaticToken(ctx)
	}

	m.mu.Lock()
	if m.token == "" {
		m.state = StateAuthenticating
	} else {
		m.state = StateReauthenticating
	}
	m.mu.Unlock()

	token, err := m.requestToken(ctx)
	if err != nil {
		m.setState(StateFailed)
		m.metrics.recordLogin(ctx, loginResultFailure)
		m.logger.Warn("session.login.error", "email", m.email, "error", err)
		return err
	}

	m.mu.Lock()
	m.token = token
	m.state = StateAuthenticated
	m.mu.Unlock()
	m.metrics.recordLogin(ctx, loginResultSuccess)
	m.logger.Info("session.login.success", "email", m.email, "device_name", m.deviceName)
	return nil
}

func (m *Manager) adoptStaticToken(ctx context.Context) error {
	if m.staticToken == "" {
		m.metrics.recordLogin(ctx, loginResultConfig)
		return &ConfigurationError{Reason: "set an email and password or a static API token"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == m.staticToken {
		m.state = StateFailed
		m.metrics.recordLogin(ctx, loginResultFailure)
		m.logger.Warn("session.login.static_rejected")
		return &AuthenticationError{
			Status: http.StatusUnauthorized,
			Reason: "invalid API token and no email/password configured to refresh it",
		}
	}
	m.token = m.staticToken
	m.state = StateAuthenticated
	m.metrics.recordLogin(ctx, loginResultStatic)
	m.logger.Info("session.login.static_token")
	return nil
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

type loginResponse struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

func (m *Manager) requestToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(loginRequest{Email: m.email, Password: m.password, DeviceName: m.deviceName})
	if err != nil {
		return "", &AuthenticationError{Reason: "encode login request", Err: err}
	}
	reqCtx, cancel := context.WithTimeout(ctx, m.httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, m.baseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", &AuthenticationError{Reason: "build login request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	m.logger.Debug("session.login.start", "url", m.baseURL+loginPath)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", &AuthenticationError{Reason: "login request failed", Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthenticationError{Status: resp.StatusCode, Reason: "read login response", Err: err}
	}
	if resp.StatusCode >= 300 {
		return "", &AuthenticationError{Status: resp.StatusCode, Reason: loginFailureReason(data)}
	}
	var out loginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &AuthenticationError{Status: resp.StatusCode, Reason: "decode login response", Err: err}
	}
	token := strings.TrimSpace(out.Token)
	if token == "" {
		return "", &AuthenticationError{Status: resp.StatusCode, Reason: "login response did not include a token"}
	}
	return token, nil
}

func loginFailureReason(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Message) != "" {
		return strings.TrimSpace(payload.Message)
	}
	return "login rejected"
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

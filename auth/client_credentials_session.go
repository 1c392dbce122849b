package auth

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-btpay/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	TokenPath              = "/oauth2/token"
	GrantTypeClientCreds   = "client_credentials"
	DefaultTokenLifetime   = 3600 * time.Second
	RefreshLeadTime        = 60 * time.Second
	MinimumRefreshDelay    = 100 * time.Millisecond
	operationAuthenticate  = "authenticate"
	operationTokenRefresh  = "token_refresh"
	sessionDisposedMessage = "session disposed"
)

type ClientCredentialsSessionConfig struct {
	APIKey               string
	TokenURL             string
	TokenRefreshInterval time.Duration
	AutoRefresh          bool
	// RefreshMaxAttempts above 1 retries a failed scheduled refresh with
	// backoff from Scheduler.
	RefreshMaxAttempts int
	Scheduler          core.RefreshBackoffScheduler
	Clock              core.Clock
	Logger             core.Logger
}

// ClientCredentialsSession owns the access token, its expiry and the single
// pending refresh timer. Only its methods mutate that state.
type ClientCredentialsSession struct {
	config    ClientCredentialsSessionConfig
	transport core.TransportAdapter
	clock     core.Clock
	logger    core.Logger

	// authMu serialises token requests so callers never observe a torn update.
	authMu sync.Mutex

	mu         sync.Mutex
	token      string
	expiresAt  time.Time
	timer      core.Timer
	timerDelay time.Duration
	generation uint64
	disposed   bool
}

func NewClientCredentialsSession(transport core.TransportAdapter, cfg ClientCredentialsSessionConfig) *ClientCredentialsSession {
	clock := cfg.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = core.ExponentialBackoffScheduler{}
	}
	if cfg.RefreshMaxAttempts < 1 {
		cfg.RefreshMaxAttempts = 1
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	return &ClientCredentialsSession{
		config:    cfg,
		transport: transport,
		clock:     clock,
		logger:    glog.Ensure(cfg.Logger),
	}
}

// SessionConfigFromClient maps the client configuration onto a session.
func SessionConfigFromClient(cfg core.Config, clock core.Clock, logger core.Logger) ClientCredentialsSessionConfig {
	return ClientCredentialsSessionConfig{
		APIKey:               cfg.APIKey,
		TokenURL:             cfg.BaseURL() + TokenPath,
		TokenRefreshInterval: cfg.TokenRefreshInterval,
		AutoRefresh:          cfg.AutoRefreshEnabled(),
		RefreshMaxAttempts:   cfg.Refresh.MaxAttempts,
		Scheduler:            cfg.Refresh.Scheduler(),
		Clock:                clock,
		Logger:               logger,
	}
}

// NewAuthenticator is the core.AuthenticatorFactory for client credentials.
func NewAuthenticator(deps core.AuthenticatorDeps) (core.Authenticator, error) {
	return NewClientCredentialsSession(deps.Transport, SessionConfigFromClient(deps.Config, deps.Clock, deps.Logger)), nil
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	ClientID  string `json:"client_id"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

// Authenticate runs a client-credentials grant. It returns false without an
// error when the endpoint answers 2xx but carries no access token.
func (s *ClientCredentialsSession) Authenticate(ctx context.Context) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.authenticateLocked(ctx)
}

// reauthenticate replaces an expired token unless another caller already
// did so while this one waited for authMu.
func (s *ClientCredentialsSession) reauthenticate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.authMu.Lock()
	defer s.authMu.Unlock()
	if token, expired := s.snapshot(); token != "" && !expired {
		return nil
	}
	_, err := s.authenticateLocked(ctx)
	return err
}

// authenticateLocked runs the grant. Callers hold authMu.
func (s *ClientCredentialsSession) authenticateLocked(ctx context.Context) (bool, error) {
	if s.isDisposed() {
		return false, core.NewAPIError(operationAuthenticate, sessionDisposedMessage, 0, nil)
	}

	body, err := json.Marshal(tokenRequest{GrantType: GrantTypeClientCreds, ClientID: s.config.APIKey})
	if err != nil {
		return false, core.NewAuthenticationError(operationAuthenticate, "encode token request", 0, nil, err)
	}
	res, err := s.transport.Do(ctx, core.TransportRequest{
		Operation: operationAuthenticate,
		Method:    http.MethodPost,
		URL:       s.config.TokenURL,
		Headers:   map[string]string{"Content-Type": "application/json"},
		Body:      body,
	})
	if err != nil {
		return false, authenticationFailure(err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return false, authenticationFailure(core.ClassifyResponse(operationAuthenticate, res.StatusCode, res.Body))
	}

	var decoded tokenResponse
	if len(strings.TrimSpace(string(res.Body))) > 0 {
		if err := json.Unmarshal(res.Body, &decoded); err != nil {
			return false, core.NewAuthenticationError(operationAuthenticate, "decode token response", 0, string(res.Body), err)
		}
	}
	token := strings.TrimSpace(decoded.AccessToken)
	if token == "" {
		s.logger.Warn("token response carried no access token", "status", res.StatusCode)
		return false, nil
	}
	lifetime := tokenLifetime(decoded.ExpiresIn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false, core.NewAPIError(operationAuthenticate, sessionDisposedMessage, 0, nil)
	}
	s.token = token
	s.expiresAt = s.clock.Now().Add(lifetime)
	if s.config.AutoRefresh {
		s.scheduleLocked(s.refreshDelay(lifetime), 1)
	}
	s.logger.Debug("access token stored", "expires_in_s", int64(lifetime/time.Second))
	return true, nil
}

// Authorize re-authenticates when the held token is past its expiry and
// attaches the bearer credential when a token is held.
func (s *ClientCredentialsSession) Authorize(ctx context.Context, req *core.TransportRequest) error {
	if req == nil {
		return nil
	}
	token, expired := s.snapshot()
	if token != "" && expired {
		if err := s.reauthenticate(ctx); err != nil {
			return err
		}
		token, _ = s.snapshot()
	}
	if token == "" {
		return nil
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer " + token
	return nil
}

func (s *ClientCredentialsSession) Authenticated() bool {
	token, _ := s.snapshot()
	return token != ""
}

// ExpiresAt reports the recorded expiry of the held token.
func (s *ClientCredentialsSession) ExpiresAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return time.Time{}, false
	}
	return s.expiresAt, true
}

// PendingRefresh reports the delay of the scheduled refresh, if any.
func (s *ClientCredentialsSession) PendingRefresh() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return 0, false
	}
	return s.timerDelay, true
}

// Dispose cancels the pending refresh and clears the token. Idempotent.
func (s *ClientCredentialsSession) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTimerLocked()
	s.generation++
	s.token = ""
	s.expiresAt = time.Time{}
	s.disposed = true
}

func (s *ClientCredentialsSession) snapshot() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", false
	}
	return s.token, s.clock.Now().After(s.expiresAt)
}

func (s *ClientCredentialsSession) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

func (s *ClientCredentialsSession) refreshDelay(lifetime time.Duration) time.Duration {
	delay := lifetime - RefreshLeadTime
	if s.config.TokenRefreshInterval > 0 {
		delay = s.config.TokenRefreshInterval
	}
	if delay < MinimumRefreshDelay {
		return MinimumRefreshDelay
	}
	return delay
}

// scheduleLocked replaces any pending timer. The callback only runs if its
// generation is still current when it fires.
func (s *ClientCredentialsSession) scheduleLocked(delay time.Duration, attempt int) {
	s.cancelTimerLocked()
	s.generation++
	generation := s.generation
	s.timerDelay = delay
	s.timer = s.clock.AfterFunc(delay, func() {
		s.refresh(generation, attempt)
	})
}

func (s *ClientCredentialsSession) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = nil
	s.timerDelay = 0
}

func (s *ClientCredentialsSession) refresh(generation uint64, attempt int) {
	s.mu.Lock()
	if s.disposed || generation != s.generation {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.timerDelay = 0
	s.mu.Unlock()

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("token refresh panicked", "panic", recovered)
		}
	}()

	ok, err := s.Authenticate(context.Background())
	if err == nil && ok {
		return
	}
	if err != nil {
		s.logger.Error("token refresh failed", "attempt", attempt, "error", err)
	} else {
		s.logger.Warn("token refresh returned no token", "attempt", attempt)
	}
	if attempt >= s.config.RefreshMaxAttempts {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.timer != nil {
		return
	}
	s.scheduleLocked(s.config.Scheduler.NextDelay(attempt), attempt+1)
}

// authenticationFailure reclassifies a failed token call, keeping the
// upstream status when there was one.
func authenticationFailure(err error) error {
	status := core.StatusOf(err)
	var payload any
	if typed, ok := core.AsError(err); ok {
		payload = typed.Payload
	}
	message := "authentication failed"
	if status > 0 {
		message = "API error: " + http.StatusText(status)
	}
	return core.NewAuthenticationError(operationAuthenticate, message, status, payload, err)
}

// maxLifetimeSeconds keeps the converted lifetime inside time.Duration.
const maxLifetimeSeconds = float64(math.MaxInt64/int64(time.Second)) - 1

func tokenLifetime(expiresIn json.Number) time.Duration {
	raw := strings.TrimSpace(expiresIn.String())
	if raw == "" {
		return DefaultTokenLifetime
	}
	seconds, err := expiresIn.Float64()
	if err != nil || seconds <= 0 {
		return DefaultTokenLifetime
	}
	if seconds > maxLifetimeSeconds {
		seconds = maxLifetimeSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

var _ core.Authenticator = (*ClientCredentialsSession)(nil)

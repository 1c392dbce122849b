package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/samber/lo"
)

// Client is the authenticated gateway shared by every payment operation.
// Requests flow through the interceptors, then the authenticator, then the
// transport adapter.
type Client struct {
	config          Config
	baseURL         string
	transport       TransportAdapter
	authenticator   Authenticator
	interceptors    []RequestInterceptor
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	requestIDs      RequestIDGenerator
	clock           Clock

	disposeOnce sync.Once
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("btpay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.requestIDs == nil {
		return nil, fmt.Errorf("core: request id generator is required")
	}
	if builder.clock == nil {
		builder.clock = SystemClock{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, err
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, err
	}
	if builder.autoRefresh != nil {
		finalConfig.AutoRefreshToken = lo.ToPtr(*builder.autoRefresh)
	}

	transport := builder.transport
	if transport == nil && builder.transportFactory != nil {
		transport, err = builder.transportFactory(finalConfig, logger)
		if err != nil {
			return nil, err
		}
	}
	if transport == nil {
		return nil, fmt.Errorf("core: transport adapter is required")
	}

	authenticator := builder.authenticator
	if authenticator == nil && builder.authenticatorFactory != nil {
		authenticator, err = builder.authenticatorFactory(AuthenticatorDeps{
			Config:    finalConfig,
			Transport: transport,
			Clock:     builder.clock,
			Logger:    namedLogger(provider, logger, "btpay.auth"),
		})
		if err != nil {
			return nil, err
		}
	}

	interceptors := append([]RequestInterceptor(nil), builder.interceptors...)
	for _, factory := range builder.interceptorFactories {
		interceptor, factoryErr := factory(finalConfig)
		if factoryErr != nil {
			return nil, factoryErr
		}
		if interceptor != nil {
			interceptors = append(interceptors, interceptor)
		}
	}

	return &Client{
		config:          finalConfig,
		baseURL:         finalConfig.BaseURL(),
		transport:       transport,
		authenticator:   authenticator,
		interceptors:    interceptors,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		requestIDs:      builder.requestIDs,
		clock:           builder.clock,
	}, nil
}

func namedLogger(provider LoggerProvider, fallback Logger, name string) Logger {
	if provider != nil {
		if named := provider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(fallback)
}

func (c *Client) Config() Config {
	return c.config
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Clock() Clock {
	return c.clock
}

func (c *Client) Logger() Logger {
	return c.logger
}

func (c *Client) LoggerProvider() LoggerProvider {
	return c.loggerProvider
}

// LoggerFor returns a named logger from the configured provider.
func (c *Client) LoggerFor(name string) Logger {
	return namedLogger(c.loggerProvider, c.logger, name)
}

// Authenticate obtains a fresh access token. It reports false when the
// token endpoint answered without a token.
func (c *Client) Authenticate(ctx context.Context) (bool, error) {
	if c.authenticator == nil {
		return false, NewAPIError("authenticate", "authenticator is not configured", 0, nil)
	}
	startedAt := c.clock.Now()
	ok, err := c.authenticator.Authenticate(ctx)
	c.observeOperation(ctx, startedAt, "authenticate", err, map[string]any{"authenticated": ok})
	return ok, err
}

func (c *Client) Authenticated() bool {
	return c.authenticator != nil && c.authenticator.Authenticated()
}

// Dispose releases the session and cancels any pending refresh. Safe to call
// more than once.
func (c *Client) Dispose() {
	if c == nil {
		return
	}
	c.disposeOnce.Do(func() {
		if c.authenticator != nil {
			c.authenticator.Dispose()
		}
	})
}

// Do sends a request relative to the base URL and returns the raw response.
// Every failure is a *Error.
func (c *Client) Do(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	res, err := c.send(ctx, req)
	if err != nil {
		return TransportResponse{}, WrapOperationError(err, req.Operation, KindAPI, "request failed")
	}
	return res, nil
}

// DoJSON sends in as a JSON body and decodes the response into out.
func (c *Client) DoJSON(ctx context.Context, req TransportRequest, in any, out any) error {
	return WrapOperationError(c.doJSON(ctx, req, in, out), req.Operation, KindAPI, "request failed")
}

// send runs the pipeline. Untyped errors from interceptors or adapters are
// returned as-is so each operation can wrap them into its own kind.
func (c *Client) send(ctx context.Context, req TransportRequest) (TransportResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	operation := strings.TrimSpace(req.Operation)
	req.URL = c.resolveURL(req.URL)
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if len(req.Body) > 0 {
		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}
	if req.Timeout <= 0 {
		req.Timeout = c.config.Transport.Timeout
	}
	if req.MaxResponseBodyBytes <= 0 {
		req.MaxResponseBodyBytes = c.config.Transport.MaxResponseBodyBytes
	}

	for _, interceptor := range c.interceptors {
		if err := interceptor.Intercept(ctx, &req); err != nil {
			return TransportResponse{}, err
		}
	}
	if c.authenticator != nil {
		if err := c.authenticator.Authorize(ctx, &req); err != nil {
			return TransportResponse{}, err
		}
	}

	res, err := c.transport.Do(ctx, req)
	if err != nil {
		return TransportResponse{}, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return TransportResponse{}, ClassifyResponse(operation, res.StatusCode, res.Body)
	}
	return res, nil
}

func (c *Client) doJSON(ctx context.Context, req TransportRequest, in any, out any) error {
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return NewRequestError(req.Operation, fmt.Errorf("encode request body: %w", err))
		}
		req.Body = body
	}
	res, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(strings.TrimSpace(string(res.Body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return NewAPIError(req.Operation, "decode response body", 0, string(res.Body))
	}
	return nil
}

func (c *Client) resolveURL(path string) string {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimRight(c.baseURL, "/") + path
}

func (c *Client) nextRequestID() string {
	return c.requestIDs()
}


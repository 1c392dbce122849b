package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-btpay/core"
	glog "github.com/goliatone/go-logger/glog"
)

const defaultRESTClientTimeout = core.DefaultTransportTimeout
const defaultRESTResponseBodyLimit int64 = core.DefaultMaxResponseBodySize

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes requests over HTTP and classifies every failure at
// this boundary: non-2xx responses become API or authentication errors,
// missing responses become network errors and requests that could not be
// built become API errors with status 0.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Logger               core.Logger
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"Accept": "application/json",
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
		Logger:               glog.Nop(),
	}
}

// NewAdapter is the core.TransportFactory for the REST adapter.
func NewAdapter(cfg core.Config, logger core.Logger) (core.TransportAdapter, error) {
	adapter := NewRESTAdapter(NewHTTPClient(cfg.Transport, logger))
	if cfg.Transport.MaxResponseBodyBytes > 0 {
		adapter.MaxResponseBodyBytes = cfg.Transport.MaxResponseBodyBytes
	}
	adapter.Logger = glog.Ensure(logger)
	return adapter, nil
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	operation := strings.TrimSpace(req.Operation)
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, core.NewRequestError(operation, fmt.Errorf("transport: rest adapter requires an http client"))
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return core.TransportResponse{}, core.NewRequestError(operation, fmt.Errorf("transport: request url is required"))
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return core.TransportResponse{}, core.NewRequestError(operation, fmt.Errorf("transport: invalid request url: %w", err))
	}

	if len(req.Query) > 0 {
		query := parsedURL.Query()
		for key, value := range req.Query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsedURL.RawQuery = query.Encode()
	}

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()
	if method == http.MethodGet || method == http.MethodHead {
		requestCtx = WithRetryable(requestCtx)
	}

	var body io.Reader = http.NoBody
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), body)
	if err != nil {
		return core.TransportResponse{}, core.NewRequestError(operation, fmt.Errorf("transport: create http request: %w", err))
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		a.logger().Warn("http request failed", "operation", operation, "method", method, "error", err)
		return core.TransportResponse{}, core.NewNetworkError(operation, err)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, core.NewNetworkError(operation, fmt.Errorf("transport: read response body: %w", err))
	}
	if int64(len(payload)) > maxBodyBytes {
		return core.TransportResponse{}, core.NewNetworkError(operation,
			fmt.Errorf("transport: response body exceeds limit of %d bytes", maxBodyBytes))
	}

	a.logger().Debug("http request completed",
		"operation", operation,
		"method", method,
		"status", httpRes.StatusCode,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	if httpRes.StatusCode < 200 || httpRes.StatusCode > 299 {
		return core.TransportResponse{}, core.ClassifyResponse(operation, httpRes.StatusCode, payload)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
		},
	}, nil
}

func (a *RESTAdapter) logger() core.Logger {
	return glog.Ensure(a.Logger)
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)

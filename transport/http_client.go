package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-btpay/core"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	defaultRetryWaitMin = 250 * time.Millisecond
	defaultRetryWaitMax = 5 * time.Second
)

type retryableKey struct{}

// WithRetryable marks a request context as safe to resend.
func WithRetryable(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryableKey{}, true)
}

func retryable(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	marked, _ := ctx.Value(retryableKey{}).(bool)
	return marked
}

// NewHTTPClient builds the HTTP doer for the adapter. With retries enabled
// only requests marked WithRetryable are resent, and the final response is
// passed through so status classification still applies.
func NewHTTPClient(cfg core.TransportConfig, logger core.Logger) HTTPDoer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRESTClientTimeout
	}
	if cfg.MaxRetries <= 0 {
		return &http.Client{Timeout: timeout}
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.MaxRetries
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.HTTPClient.Timeout = timeout
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if !retryable(ctx) {
			return false, nil
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if logger != nil {
		client.Logger = retryablehttp.LeveledLogger(logger)
	} else {
		client.Logger = nil
	}
	return client.StandardClient()
}

package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-btpay/core"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/time/rate"
)

const TextCodeThrottled = "BTPAY_RATE_LIMITED"

// ThrottledError reports a request that was not sent because the local
// token bucket could not admit it.
type ThrottledError struct {
	Operation string
	Cause     error
}

func (e ThrottledError) Error() string {
	message := fmt.Sprintf("ratelimit: operation %q throttled", strings.TrimSpace(e.Operation))
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e ThrottledError) Unwrap() error {
	return e.Cause
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(TextCodeThrottled).
		WithMetadata(map[string]any{"operation": strings.TrimSpace(e.Operation)})
}

// Limiter is a request interceptor that paces outbound calls.
type Limiter struct {
	limiter *rate.Limiter
}

func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// NewInterceptor is a core.InterceptorFactory; it returns nil when pacing is
// disabled.
func NewInterceptor(cfg core.Config) (core.RequestInterceptor, error) {
	if cfg.Transport.RequestsPerSecond <= 0 {
		return nil, nil
	}
	return NewLimiter(cfg.Transport.RequestsPerSecond, cfg.Transport.Burst), nil
}

func (l *Limiter) Intercept(ctx context.Context, req *core.TransportRequest) error {
	if l == nil || l.limiter == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := l.limiter.Wait(ctx); err != nil {
		operation := ""
		if req != nil {
			operation = req.Operation
		}
		return ThrottledError{Operation: operation, Cause: err}
	}
	return nil
}

var _ core.RequestInterceptor = (*Limiter)(nil)

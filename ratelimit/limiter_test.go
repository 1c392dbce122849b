package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-btpay/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestNewInterceptor_DisabledWithoutRate(t *testing.T) {
	interceptor, err := NewInterceptor(core.DefaultConfig())
	if err != nil {
		t.Fatalf("new interceptor: %v", err)
	}
	if interceptor != nil {
		t.Fatalf("expected no interceptor when requests_per_second is zero")
	}
}

func TestLimiter_AdmitsBurstThenThrottles(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	req := &core.TransportRequest{Operation: "get_payment_status"}

	if err := limiter.Intercept(context.Background(), req); err != nil {
		t.Fatalf("expected first request admitted, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Intercept(ctx, req)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if throttled.Operation != "get_payment_status" {
		t.Fatalf("unexpected operation %q", throttled.Operation)
	}
}

func TestThrottledError_ToServiceError(t *testing.T) {
	mapped := ThrottledError{Operation: "create_payment"}.ToServiceError()
	if mapped.Category != goerrors.CategoryRateLimit {
		t.Fatalf("expected rate limit category, got %q", mapped.Category)
	}
	if mapped.Code != http.StatusTooManyRequests || mapped.TextCode != TextCodeThrottled {
		t.Fatalf("unexpected envelope %d %q", mapped.Code, mapped.TextCode)
	}
}

package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TransportRequest struct {
	Operation            string
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

// TransportAdapter executes a request against the bank API. Implementations
// must return a *Error for every failure, classified at the transport boundary.
type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RequestInterceptor mutates an outbound request before it reaches the
// transport. Returning an error aborts the request.
type RequestInterceptor interface {
	Intercept(ctx context.Context, req *TransportRequest) error
}

type RequestInterceptorFunc func(ctx context.Context, req *TransportRequest) error

func (f RequestInterceptorFunc) Intercept(ctx context.Context, req *TransportRequest) error {
	return f(ctx, req)
}

// Authenticator owns the access token. Authorize is the only place a bearer
// credential is attached to an outbound request.
type Authenticator interface {
	Authenticate(ctx context.Context) (bool, error)
	Authorize(ctx context.Context, req *TransportRequest) error
	Authenticated() bool
	Dispose()
}

type StatusChecker interface {
	GetPaymentStatus(ctx context.Context, lookup PaymentLookup) (PaymentStatus, error)
}

type PaymentOperations interface {
	StatusChecker
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentInitiationResult, error)
	GetPaymentDetails(ctx context.Context, lookup PaymentLookup) (PaymentDetails, error)
	ConfirmBulkPayment(ctx context.Context, bulkPaymentID string, product string) (PaymentDetails, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

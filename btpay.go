// Package btpay is a client for the Banca Transilvania PSD2 payment
// initiation API. NewClient wires the REST transport, the client-credentials
// session and the optional rate limiter into a core.Client.
package btpay

import (
	"github.com/goliatone/go-btpay/adapters/gojob"
	"github.com/goliatone/go-btpay/adapters/gologger"
	"github.com/goliatone/go-btpay/auth"
	"github.com/goliatone/go-btpay/binding"
	"github.com/goliatone/go-btpay/core"
	"github.com/goliatone/go-btpay/polling"
	"github.com/goliatone/go-btpay/ratelimit"
	"github.com/goliatone/go-btpay/transport"
)

type Config = core.Config

type Option = core.Option

type Client = core.Client

type Environment = core.Environment

type PaymentRequest = core.PaymentRequest
type PaymentLookup = core.PaymentLookup
type PaymentInitiationResult = core.PaymentInitiationResult
type PaymentStatus = core.PaymentStatus
type PaymentDetails = core.PaymentDetails
type TransactionStatus = core.TransactionStatus

type Error = core.Error
type ErrorKind = core.ErrorKind

const (
	EnvironmentSandbox    = core.EnvironmentSandbox
	EnvironmentProduction = core.EnvironmentProduction
)

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithTransport          = core.WithTransport
	WithAuthenticator      = core.WithAuthenticator
	WithInterceptor        = core.WithInterceptor
	WithRequestIDGenerator = core.WithRequestIDGenerator
	WithClock              = core.WithClock
	WithAutoRefresh        = core.WithAutoRefresh
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewClient builds a client with the default REST transport, the
// client-credentials session and, when configured, the rate limiter.
// Options given by the caller take precedence over the defaults.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	defaults := []Option{
		core.WithTransportFactory(transport.NewAdapter),
		core.WithAuthenticatorFactory(auth.NewAuthenticator),
		core.WithInterceptorFactory(ratelimit.NewInterceptor),
	}
	return core.NewClient(cfg, append(defaults, opts...)...)
}

// NewClientFromEnv loads BTPAY_* settings from the process environment and
// the given dotenv files, then applies cfg as runtime overrides.
func NewClientFromEnv(cfg Config, files []string, opts ...Option) (*Client, error) {
	provider := core.NewCfgxConfigProvider(core.NewEnvConfigLoader(files...))
	return NewClient(cfg, append([]Option{core.WithConfigProvider(provider)}, opts...)...)
}

// NewPoller returns a status poller using the client's polling settings.
func NewPoller(client *Client) *polling.Poller {
	return polling.NewPoller(client, polling.ConfigFromClient(client.Config(), client.Clock(), client.LoggerFor("btpay.polling")))
}

// NewStore returns a reactive store bound to the client. The store owns the
// client from then on and disposes it with itself.
func NewStore(client *Client, autoPoll bool) *binding.Store {
	return binding.NewStore(client, binding.Options{
		AutoPoll: autoPoll,
		Polling:  polling.ConfigFromClient(client.Config(), client.Clock(), client.LoggerFor("btpay.polling")),
		Logger:   client.LoggerFor("btpay.store"),
	})
}

// NewStatusCheckJob returns the queued status check handler for the client.
func NewStatusCheckJob(client *Client, policy gojob.RetryPolicy) *gojob.StatusCheckJob {
	cfg := client.Config()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = cfg.Polling.MaxAttempts
	}
	_, _, _, jobLogger := gologger.ResolveForJob("btpay.jobs", client.LoggerProvider(), client.Logger())
	return gojob.NewStatusCheckJob(client, gojob.StatusCheckConfig{
		Interval: cfg.Polling.Interval,
		Policy:   policy,
		Logger:   jobLogger,
	})
}

// NewStatusCheckHook returns a worker hook that logs status check lifecycle
// events through the client's logger provider.
func NewStatusCheckHook(client *Client) *gojob.LoggingHook {
	_, _, jobProvider, _ := gologger.ResolveForJob("btpay.jobs", client.LoggerProvider(), client.Logger())
	return gojob.NewLoggingHook(jobProvider.GetLogger("btpay.jobs.worker"))
}

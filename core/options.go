package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// TransportFactory builds the adapter once the final configuration is known.
type TransportFactory func(cfg Config, logger Logger) (TransportAdapter, error)

type AuthenticatorDeps struct {
	Config    Config
	Transport TransportAdapter
	Clock     Clock
	Logger    Logger
}

type AuthenticatorFactory func(deps AuthenticatorDeps) (Authenticator, error)

type InterceptorFactory func(cfg Config) (RequestInterceptor, error)

type RequestIDGenerator func() string

type clientBuilder struct {
	runtimeConfig        Config
	autoRefresh          *bool
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	transport            TransportAdapter
	transportFactory     TransportFactory
	authenticator        Authenticator
	authenticatorFactory AuthenticatorFactory
	interceptors         []RequestInterceptor
	interceptorFactories []InterceptorFactory
	requestIDs           RequestIDGenerator
	clock                Clock
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport TransportAdapter) Option {
	return func(b *clientBuilder) {
		b.transport = transport
	}
}

func WithTransportFactory(factory TransportFactory) Option {
	return func(b *clientBuilder) {
		b.transportFactory = factory
	}
}

func WithAuthenticator(authenticator Authenticator) Option {
	return func(b *clientBuilder) {
		b.authenticator = authenticator
	}
}

func WithAuthenticatorFactory(factory AuthenticatorFactory) Option {
	return func(b *clientBuilder) {
		b.authenticatorFactory = factory
	}
}

// WithInterceptor appends an interceptor that runs before the authenticator.
func WithInterceptor(interceptor RequestInterceptor) Option {
	return func(b *clientBuilder) {
		if interceptor != nil {
			b.interceptors = append(b.interceptors, interceptor)
		}
	}
}

func WithInterceptorFactory(factory InterceptorFactory) Option {
	return func(b *clientBuilder) {
		if factory != nil {
			b.interceptorFactories = append(b.interceptorFactories, factory)
		}
	}
}

func WithRequestIDGenerator(generator RequestIDGenerator) Option {
	return func(b *clientBuilder) {
		b.requestIDs = generator
	}
}

func WithClock(clock Clock) Option {
	return func(b *clientBuilder) {
		b.clock = clock
	}
}

// WithAutoRefresh forces the auto refresh flag. Layered config cannot
// express an explicit false, so this option is applied last.
func WithAutoRefresh(enabled bool) Option {
	return func(b *clientBuilder) {
		b.autoRefresh = &enabled
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("btpay", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		requestIDs:      uuid.NewString,
		clock:           SystemClock{},
	}
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// NewStaticConfigLoader serves a fixed raw configuration map.
func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	// The API key usually arrives through the runtime layer, so the loaded
	// layer is only checked once merged.
	cfg, err := cfgx.Build[Config](raw, cfgx.WithDefaults(defaults.clone()))
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults.clone()),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap keeps only fields that carry a value, unless includeZero
// is set. Booleans are pointers so an explicit false still counts as a value.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString := func(target map[string]any, key, value string) {
		if includeZero || strings.TrimSpace(value) != "" {
			target[key] = strings.TrimSpace(value)
		}
	}
	setDuration := func(target map[string]any, key string, value time.Duration) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}
	setInt := func(target map[string]any, key string, value int64) {
		if includeZero || value != 0 {
			target[key] = value
		}
	}

	setString(layer, "api_key", cfg.APIKey)
	setString(layer, "environment", string(cfg.Environment))
	setString(layer, "psu_ip_address", cfg.PSUIPAddress)
	setDuration(layer, "token_refresh_interval", cfg.TokenRefreshInterval)
	if cfg.AutoRefreshToken != nil {
		layer["auto_refresh_token"] = *cfg.AutoRefreshToken
	} else if includeZero {
		layer["auto_refresh_token"] = cfg.AutoRefreshEnabled()
	}

	refresh := map[string]any{}
	setInt(refresh, "max_attempts", int64(cfg.Refresh.MaxAttempts))
	setDuration(refresh, "initial_backoff", cfg.Refresh.InitialBackoff)
	setDuration(refresh, "max_backoff", cfg.Refresh.MaxBackoff)
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	transport := map[string]any{}
	setDuration(transport, "timeout", cfg.Transport.Timeout)
	setInt(transport, "max_retries", int64(cfg.Transport.MaxRetries))
	if includeZero || cfg.Transport.RequestsPerSecond != 0 {
		transport["requests_per_second"] = cfg.Transport.RequestsPerSecond
	}
	setInt(transport, "burst", int64(cfg.Transport.Burst))
	setInt(transport, "max_response_body_bytes", cfg.Transport.MaxResponseBodyBytes)
	if len(transport) > 0 {
		layer["transport"] = transport
	}

	polling := map[string]any{}
	setDuration(polling, "interval", cfg.Polling.Interval)
	setInt(polling, "max_attempts", int64(cfg.Polling.MaxAttempts))
	if len(polling) > 0 {
		layer["polling"] = polling
	}
	return layer
}

// EnvConfigLoader reads BTPAY_* variables, optionally seeded from dotenv
// files. Process environment wins over file values.
type EnvConfigLoader struct {
	Prefix string
	Files  []string
	Lookup func(key string) (string, bool)
}

func NewEnvConfigLoader(files ...string) *EnvConfigLoader {
	return &EnvConfigLoader{Prefix: "BTPAY_", Files: files}
}

func (l *EnvConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	prefix := "BTPAY_"
	lookup := os.LookupEnv
	var files []string
	if l != nil {
		if strings.TrimSpace(l.Prefix) != "" {
			prefix = strings.TrimSpace(l.Prefix)
		}
		if l.Lookup != nil {
			lookup = l.Lookup
		}
		files = l.Files
	}

	fileValues := map[string]string{}
	if len(files) > 0 {
		values, err := godotenv.Read(files...)
		if err != nil {
			return nil, fmt.Errorf("core: read env files: %w", err)
		}
		fileValues = values
	}
	get := func(name string) (string, bool) {
		key := prefix + name
		if value, ok := lookup(key); ok {
			return value, true
		}
		value, ok := fileValues[key]
		return value, ok
	}

	raw := map[string]any{}
	section := func(name string) map[string]any {
		if existing, ok := raw[name].(map[string]any); ok {
			return existing
		}
		created := map[string]any{}
		raw[name] = created
		return created
	}

	for _, entry := range envBindings {
		value, ok := get(entry.env)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := entry.parse(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("core: %s%s: %w", prefix, entry.env, err)
		}
		target := raw
		if entry.section != "" {
			target = section(entry.section)
		}
		target[entry.key] = parsed
	}
	return raw, nil
}

type envBinding struct {
	env     string
	section string
	key     string
	parse   func(string) (any, error)
}

var envBindings = []envBinding{
	{env: "API_KEY", key: "api_key", parse: parseEnvString},
	{env: "ENVIRONMENT", key: "environment", parse: parseEnvString},
	{env: "TOKEN_REFRESH_INTERVAL", key: "token_refresh_interval", parse: parseEnvDuration},
	{env: "AUTO_REFRESH_TOKEN", key: "auto_refresh_token", parse: parseEnvBool},
	{env: "PSU_IP_ADDRESS", key: "psu_ip_address", parse: parseEnvString},
	{env: "REFRESH_MAX_ATTEMPTS", section: "refresh", key: "max_attempts", parse: parseEnvInt},
	{env: "REFRESH_INITIAL_BACKOFF", section: "refresh", key: "initial_backoff", parse: parseEnvDuration},
	{env: "REFRESH_MAX_BACKOFF", section: "refresh", key: "max_backoff", parse: parseEnvDuration},
	{env: "TRANSPORT_TIMEOUT", section: "transport", key: "timeout", parse: parseEnvDuration},
	{env: "TRANSPORT_MAX_RETRIES", section: "transport", key: "max_retries", parse: parseEnvInt},
	{env: "TRANSPORT_REQUESTS_PER_SECOND", section: "transport", key: "requests_per_second", parse: parseEnvFloat},
	{env: "TRANSPORT_BURST", section: "transport", key: "burst", parse: parseEnvInt},
	{env: "TRANSPORT_MAX_RESPONSE_BODY_BYTES", section: "transport", key: "max_response_body_bytes", parse: parseEnvInt},
	{env: "POLLING_INTERVAL", section: "polling", key: "interval", parse: parseEnvDuration},
	{env: "POLLING_MAX_ATTEMPTS", section: "polling", key: "max_attempts", parse: parseEnvInt},
}

func parseEnvString(value string) (any, error) { return value, nil }

func parseEnvBool(value string) (any, error) { return strconv.ParseBool(value) }

func parseEnvInt(value string) (any, error) { return strconv.ParseInt(value, 10, 64) }

func parseEnvFloat(value string) (any, error) { return strconv.ParseFloat(value, 64) }

// parseEnvDuration accepts Go durations ("3s") or plain milliseconds.
func parseEnvDuration(value string) (any, error) {
	if millis, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(millis) * time.Millisecond, nil
	}
	return time.ParseDuration(value)
}

package core

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

const (
	SandboxBaseURL    = "https://api.apistorebt.ro/bt/sb/bt-psd2"
	ProductionBaseURL = "https://api.apistorebt.ro/bt/prd/bt-psd2"
)

const (
	DefaultPSUIPAddress        = "127.0.0.1"
	DefaultPollingInterval     = 3 * time.Second
	DefaultPollingMaxAttempts  = 10
	DefaultTransportTimeout    = 30 * time.Second
	DefaultMaxResponseBodySize = 10 << 20 // 10 MiB
)

// BaseURL resolves the API root for an environment. Anything other than
// production resolves to the sandbox root.
func BaseURL(env Environment) string {
	if env == EnvironmentProduction {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

func (e Environment) Valid() bool {
	switch e {
	case EnvironmentSandbox, EnvironmentProduction:
		return true
	default:
		return false
	}
}

type RefreshConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type TransportConfig struct {
	Timeout              time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxRetries           int           `koanf:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond    float64       `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst                int           `koanf:"burst" mapstructure:"burst"`
	MaxResponseBodyBytes int64         `koanf:"max_response_body_bytes" mapstructure:"max_response_body_bytes"`
}

type PollingConfig struct {
	Interval    time.Duration `koanf:"interval" mapstructure:"interval"`
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
}

type Config struct {
	APIKey               string          `koanf:"api_key" mapstructure:"api_key"`
	Environment          Environment     `koanf:"environment" mapstructure:"environment"`
	TokenRefreshInterval time.Duration   `koanf:"token_refresh_interval" mapstructure:"token_refresh_interval"`
	AutoRefreshToken     *bool           `koanf:"auto_refresh_token" mapstructure:"auto_refresh_token"`
	PSUIPAddress         string          `koanf:"psu_ip_address" mapstructure:"psu_ip_address"`
	Refresh              RefreshConfig   `koanf:"refresh" mapstructure:"refresh"`
	Transport            TransportConfig `koanf:"transport" mapstructure:"transport"`
	Polling              PollingConfig   `koanf:"polling" mapstructure:"polling"`
}

func DefaultConfig() Config {
	return Config{
		Environment:      EnvironmentSandbox,
		AutoRefreshToken: lo.ToPtr(true),
		PSUIPAddress:     DefaultPSUIPAddress,
		Refresh: RefreshConfig{
			MaxAttempts:    1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
		},
		Transport: TransportConfig{
			Timeout:              DefaultTransportTimeout,
			MaxResponseBodyBytes: DefaultMaxResponseBodySize,
		},
		Polling: PollingConfig{
			Interval:    DefaultPollingInterval,
			MaxAttempts: DefaultPollingMaxAttempts,
		},
	}
}

// AutoRefreshEnabled reports whether the session schedules token refreshes.
// An unset value means enabled.
func (c Config) AutoRefreshEnabled() bool {
	return c.AutoRefreshToken == nil || *c.AutoRefreshToken
}

// clone detaches pointer fields so decoding into the copy leaves c intact.
func (c Config) clone() Config {
	if c.AutoRefreshToken != nil {
		c.AutoRefreshToken = lo.ToPtr(*c.AutoRefreshToken)
	}
	return c
}

func (c Config) BaseURL() string {
	return BaseURL(c.Environment)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("core: api_key is required")
	}
	if !c.Environment.Valid() {
		return fmt.Errorf("core: environment %q is invalid, expected sandbox or production", c.Environment)
	}
	if c.TokenRefreshInterval < 0 {
		return fmt.Errorf("core: token_refresh_interval must be >= 0")
	}
	if ip := strings.TrimSpace(c.PSUIPAddress); ip != "" && net.ParseIP(ip) == nil {
		return fmt.Errorf("core: psu_ip_address %q is invalid", ip)
	}
	if c.Refresh.MaxAttempts < 0 {
		return fmt.Errorf("core: refresh.max_attempts must be >= 0")
	}
	if c.Transport.MaxRetries < 0 {
		return fmt.Errorf("core: transport.max_retries must be >= 0")
	}
	if c.Transport.RequestsPerSecond < 0 {
		return fmt.Errorf("core: transport.requests_per_second must be >= 0")
	}
	if c.Polling.MaxAttempts < 0 {
		return fmt.Errorf("core: polling.max_attempts must be >= 0")
	}
	if c.Polling.Interval < 0 {
		return fmt.Errorf("core: polling.interval must be >= 0")
	}
	return nil
}

package core

import (
	"fmt"
	"strings"
	"time"
)

type EndpointsConfig struct {
	BaseURL  string `koanf:"base_url" mapstructure:"base_url"`
	Login    string `koanf:"login" mapstructure:"login"`
	Register string `koanf:"register" mapstructure:"register"`
	Logout   string `koanf:"logout" mapstructure:"logout"`
	Session  string `koanf:"session" mapstructure:"session"`
	Refresh  string `koanf:"refresh" mapstructure:"refresh"`
}

type TokensConfig struct {
	AccessTTL         time.Duration `koanf:"access_ttl" mapstructure:"access_ttl"`
	RefreshTTL        time.Duration `koanf:"refresh_ttl" mapstructure:"refresh_ttl"`
	RefreshLeadWindow time.Duration `koanf:"refresh_lead_window" mapstructure:"refresh_lead_window"`
}

type ReconcileConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Endpoints   EndpointsConfig `koanf:"endpoints" mapstructure:"endpoints"`
	Tokens      TokensConfig    `koanf:"tokens" mapstructure:"tokens"`
	// RequestTimeout bounds every gateway dispatch that does not carry its
	// own deadline. The upstream design relied on platform defaults; 30s is
	// the documented default here.
	RequestTimeout time.Duration   `koanf:"request_timeout" mapstructure:"request_timeout"`
	Reconcile      ReconcileConfig `koanf:"reconcile" mapstructure:"reconcile"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "session",
		Endpoints: EndpointsConfig{
			Login:    "/auth/login",
			Register: "/auth/register",
			Logout:   "/auth/logout",
			Session:  "/auth/session",
			Refresh:  "/auth/refresh",
		},
		Tokens: TokensConfig{
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        30 * 24 * time.Hour,
			RefreshLeadWindow: 5 * time.Minute,
		},
		RequestTimeout: 30 * time.Second,
		Reconcile: ReconcileConfig{
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Tokens.AccessTTL <= 0 {
		return fmt.Errorf("core: tokens.access_ttl must be positive")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return fmt.Errorf("core: tokens.refresh_ttl must be positive")
	}
	if c.Tokens.AccessTTL >= c.Tokens.RefreshTTL {
		return fmt.Errorf("core: tokens.access_ttl must be shorter than tokens.refresh_ttl")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must not be negative")
	}
	return nil
}

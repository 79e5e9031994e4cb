package app

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/odyssey-erp/portal/internal/allauth"
)

// Config holds runtime configuration for the portal.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	AllauthURL     string        `envconfig:"ALLAUTH_URL" required:"true"`
	AllauthClient  string        `envconfig:"ALLAUTH_CLIENT" default:"browser"`
	AllauthTimeout time.Duration `envconfig:"ALLAUTH_TIMEOUT" default:"15s"`
	AllauthReset   string        `envconfig:"ALLAUTH_PASSWORD_RESET_PATH"`
	FrontendURL    string        `envconfig:"FRONTEND_URL" default:"http://localhost:8080"`

	BootstrapTimeout time.Duration `envconfig:"BOOTSTRAP_TIMEOUT" default:"10s"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"portal_session"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express.
func (c *Config) Validate() error {
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if err := checkOrigin("ALLAUTH_URL", c.AllauthURL); err != nil {
		return err
	}
	if err := checkOrigin("FRONTEND_URL", c.FrontendURL); err != nil {
		return err
	}
	switch allauth.ClientKind(c.AllauthClient) {
	case allauth.ClientBrowser, allauth.ClientApp:
	default:
		return fmt.Errorf("ALLAUTH_CLIENT must be %q or %q, got %q", allauth.ClientBrowser, allauth.ClientApp, c.AllauthClient)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

func checkOrigin(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ClientConfig configures the storefront engine that talks to the backend.
type ClientConfig struct {
	APIBaseURL     string        `envconfig:"STOREFRONT_CLIENT_API_BASE_URL" default:"http://localhost:8080"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_CLIENT_REQUEST_TIMEOUT" default:"10s"`
	LocalStorePath string        `envconfig:"STOREFRONT_CLIENT_LOCAL_STORE" default:"storefront-local.db"`
	AccessToken    string        `envconfig:"STOREFRONT_CLIENT_ACCESS_TOKEN"`
	Currency       string        `envconfig:"STOREFRONT_CLIENT_CURRENCY" default:"usd"`
	Processor      string        `envconfig:"STOREFRONT_PAYMENTS_PROCESSOR" default:"stripe"`
	StripeEnv      string        `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	StripeKey      string        `envconfig:"STOREFRONT_STRIPE_PUBLISHABLE_KEY"`
	LogLevel       string        `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"STOREFRONT_LOG_FORMAT" default:"console"`

	CompensationBaseDelay time.Duration `envconfig:"STOREFRONT_CLIENT_COMPENSATION_BASE_DELAY" default:"2s"`
	CompensationMaxDelay  time.Duration `envconfig:"STOREFRONT_CLIENT_COMPENSATION_MAX_DELAY" default:"5m"`
	CompensationMaxTries  int           `envconfig:"STOREFRONT_CLIENT_COMPENSATION_MAX_ATTEMPTS" default:"8"`
}

func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("%s is required", EnvClientAPIBaseURL)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("%s must be positive", EnvClientRequestTimeout)
	}
	return &cfg, nil
}

// LoadJWT reads only the signing settings, for tools that mint tokens
// without the rest of the server environment.
func LoadJWT() (*JWTConfig, error) {
	var cfg JWTConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing jwt config: %w", err)
	}
	return &cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is read from the environment (and an optional .env file).
// Keys map one to one to upper-case environment variables, e.g. server_port → SERVER_PORT.
type Config struct {
	DatabaseURL         string        `mapstructure:"database_url"`
	ServerPort          string        `mapstructure:"server_port"`
	BaseURL             string        `mapstructure:"base_url"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	AllowedOrigins      string        `mapstructure:"allowed_origins"`
	Currency            string        `mapstructure:"currency"`
	Processor           string        `mapstructure:"processor"`
	StripeSecretKey     string        `mapstructure:"stripe_secret_key"`
	ProcessorTimeout    time.Duration `mapstructure:"processor_timeout"`
	OpenAIAPIKey        string        `mapstructure:"openai_api_key"`
	OpenAIModel         string        `mapstructure:"openai_model"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	PaymentAbandonAfter time.Duration `mapstructure:"payment_abandon_after"`
}

const (
	ProcessorSandbox = "sandbox"
	ProcessorStripe  = "stripe"
)

var defaults = map[string]any{
	"database_url":          "",
	"server_port":           "8080",
	"base_url":              "http://localhost:8080",
	"jwt_secret":            "",
	"allowed_origins":       "http://localhost:3000",
	"currency":              "USD",
	"processor":             ProcessorSandbox,
	"stripe_secret_key":     "",
	"processor_timeout":     "30s",
	"openai_api_key":        "",
	"openai_model":          "gpt-4o",
	"log_level":             "info",
	"log_format":            "json",
	"payment_abandon_after": "24h",
}

// Load reads .env files (missing files are ignored) and then the process
// environment. Values already set in the environment win over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	c.Processor = strings.ToLower(strings.TrimSpace(c.Processor))
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return &c, nil
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.Currency) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be a three-letter code, got %q", c.Currency))
	}
	switch c.Processor {
	case ProcessorSandbox:
	case ProcessorStripe:
		if c.StripeSecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when PROCESSOR=stripe"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROCESSOR must be %q or %q, got %q", ProcessorSandbox, ProcessorStripe, c.Processor))
	}
	if c.ProcessorTimeout <= 0 {
		errs = append(errs, errors.New("PROCESSOR_TIMEOUT must be positive"))
	}
	if c.PaymentAbandonAfter <= 0 {
		errs = append(errs, errors.New("PAYMENT_ABANDON_AFTER must be positive"))
	}
	return errors.Join(errs...)
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

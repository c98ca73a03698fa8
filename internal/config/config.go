package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Venue modes
const (
	VenueModePaper  = "paper"
	VenueModeAlpaca = "alpaca"
)

// Config holds the server configuration, read from environment variables
type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required,notEmpty"`
	RunMigrations  bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	GRPCPort string `env:"GRPC_PORT" envDefault:"8080"`
	HTTPPort string `env:"HTTP_PORT" envDefault:"8000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"30m"`

	AlpacaAPIKey     string `env:"ALPACA_API_KEY"`
	AlpacaAPISecret  string `env:"ALPACA_API_SECRET"`
	AlpacaTradingURL string `env:"ALPACA_TRADING_URL" envDefault:"https://paper-api.alpaca.markets"`
	AlpacaDataURL    string `env:"ALPACA_DATA_URL" envDefault:"https://data.alpaca.markets"`

	VenueMode            string        `env:"VENUE_MODE" envDefault:"paper"`
	VenueTimeout         time.Duration `env:"VENUE_TIMEOUT" envDefault:"10s"`
	VenueBreakerFailures uint32        `env:"VENUE_BREAKER_FAILURES" envDefault:"5"`
	VenueBreakerCooldown time.Duration `env:"VENUE_BREAKER_COOLDOWN" envDefault:"30s"`

	QuoteCacheTTL     time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"1s"`
	QuotePollInterval time.Duration `env:"QUOTE_POLL_INTERVAL" envDefault:"1s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"trade-events"`
}

// Load parses the environment into a Config and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks enumerated and dependent settings
func (c Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}

	switch c.VenueMode {
	case VenueModePaper:
	case VenueModeAlpaca:
		if c.AlpacaAPIKey == "" || c.AlpacaAPISecret == "" {
			errs = append(errs, errors.New("ALPACA_API_KEY and ALPACA_API_SECRET are required when VENUE_MODE=alpaca"))
		}
	default:
		errs = append(errs, fmt.Errorf("VENUE_MODE must be paper or alpaca, got %q", c.VenueMode))
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat))
	}

	if c.VenueTimeout <= 0 {
		errs = append(errs, errors.New("VENUE_TIMEOUT must be positive"))
	}
	if c.QuotePollInterval <= 0 {
		errs = append(errs, errors.New("QUOTE_POLL_INTERVAL must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}

	return errors.Join(errs...)
}

// KafkaEnabled reports whether trade events go to Kafka
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

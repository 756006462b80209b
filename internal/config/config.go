// Package config loads service settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // Asia/Tokyo and friends on hosts without zoneinfo

	"github.com/celerix-dev/celerix-staffing/internal/vault"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every key, e.g. STAFFING_HTTP_PORT.
const EnvPrefix = "STAFFING"

type Config struct {
	HTTPPort string

	StoreBackend string
	DataDir      string
	DataKey      string
	StoreAddr    string
	StorePort    string
	DisableTLS   bool
	DBDriver     string
	DBDSN        string

	RabbitMQURL string
	EventsQueue string

	JWTSecret string

	Timezone string
	Location *time.Location

	DefaultHourlyRate  int64
	DefaultSavingsGoal int64
	DefaultSavings     int64

	LogLevel string
	LogJSON  bool
}

// Load reads envFiles (default ".env"; missing files are ignored), then the
// environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// godotenv never overrides variables that are already set.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "7002")
	v.SetDefault("STORE_BACKEND", "embedded")
	v.SetDefault("DATA_DIR", "./data")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "staffing.db")
	v.SetDefault("EVENTS_QUEUE", "staffing.events")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("DEFAULT_HOURLY_RATE", 1200)
	v.SetDefault("DEFAULT_SAVINGS_GOAL", 50000)
	v.SetDefault("DEFAULT_SAVINGS", 15000)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		HTTPPort:           v.GetString("HTTP_PORT"),
		StoreBackend:       v.GetString("STORE_BACKEND"),
		DataDir:            v.GetString("DATA_DIR"),
		DataKey:            v.GetString("DATA_KEY"),
		StoreAddr:          v.GetString("STORE_ADDR"),
		StorePort:          v.GetString("STORE_PORT"),
		DisableTLS:         v.GetBool("DISABLE_TLS"),
		DBDriver:           v.GetString("DB_DRIVER"),
		DBDSN:              v.GetString("DB_DSN"),
		RabbitMQURL:        v.GetString("RABBITMQ_URL"),
		EventsQueue:        v.GetString("EVENTS_QUEUE"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		Timezone:           v.GetString("TIMEZONE"),
		DefaultHourlyRate:  v.GetInt64("DEFAULT_HOURLY_RATE"),
		DefaultSavingsGoal: v.GetInt64("DEFAULT_SAVINGS_GOAL"),
		DefaultSavings:     v.GetInt64("DEFAULT_SAVINGS"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogJSON:            v.GetBool("LOG_JSON"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StoreBackend {
	case "embedded", "sql", "remote", "auto":
	default:
		errs = append(errs, fmt.Errorf("%s_STORE_BACKEND must be embedded, sql, remote or auto, got %q", EnvPrefix, c.StoreBackend))
	}
	if c.StoreBackend == "sql" {
		switch c.DBDriver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("%s_DB_DRIVER must be postgres or sqlite, got %q", EnvPrefix, c.DBDriver))
		}
	}
	if c.StoreBackend == "remote" && c.StoreAddr == "" {
		errs = append(errs, fmt.Errorf("%s_STORE_ADDR is required for the remote backend", EnvPrefix))
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("%s_TIMEZONE: %w", EnvPrefix, err))
	}
	c.Location = loc

	if c.DefaultHourlyRate < 0 || c.DefaultSavingsGoal < 0 || c.DefaultSavings < 0 {
		errs = append(errs, errors.New("staff defaults must not be negative"))
	}
	return errors.Join(errs...)
}

// Backend returns the store backend name in the form sdk.Open expects.
func (c *Config) Backend() string {
	if c.StoreBackend == "auto" {
		return ""
	}
	return c.StoreBackend
}

// StoreOptions translates the store settings for sdk.Open. A DATA_KEY turns
// on encryption of the embedded engine's files.
func (c *Config) StoreOptions() (sdk.Options, error) {
	opts := sdk.Options{
		Backend:    c.Backend(),
		DataDir:    c.DataDir,
		Addr:       c.StoreAddr,
		DisableTLS: c.DisableTLS,
		DBDriver:   c.DBDriver,
		DBDSN:      c.DBDSN,
	}
	if c.DataKey != "" {
		key, err := vault.ParseKey(c.DataKey)
		if err != nil {
			return opts, fmt.Errorf("%s_DATA_KEY: %w", EnvPrefix, err)
		}
		opts.Sealer = key
	}
	return opts, nil
}

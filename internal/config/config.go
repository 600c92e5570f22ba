package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Record store and cache drivers
const (
	DriverCRM      = "crm"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverNone     = "none"
)

type Config struct {
	App      AppConfig
	CRM      CRMConfig      `envPrefix:"CRM_"`
	Database DatabaseConfig `envPrefix:"DB_"`
	Clock    ClockConfig    `envPrefix:"CLOCK_"`
	TimeAPI  TimeAPIConfig
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Tracking TrackingConfig

	// RecordStoreDriver selects where day records live: crm or postgres.
	RecordStoreDriver string `env:"RECORD_STORE_DRIVER" envDefault:"crm"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Port           int           `env:"APP_PORT" envDefault:"8080"`
	Env            string        `env:"APP_ENV" envDefault:"development"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	Timezone       string        `env:"APP_TIMEZONE" envDefault:"Asia/Jakarta"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	StoragePath    string        `env:"STORAGE_BASE_PATH" envDefault:"./uploads"`
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`
}

// CRMConfig is the remote record store API
type CRMConfig struct {
	BaseURL      string        `env:"BASE_URL"`
	APIKey       string        `env:"API_KEY"`
	APIKeyScheme string        `env:"API_KEY_SCHEME" envDefault:"token"`
	RecordType   string        `env:"RECORD_TYPE" envDefault:"Attendance"`
	OfficeType   string        `env:"OFFICE_TYPE" envDefault:"Branch"`
	EmployeeType string        `env:"EMPLOYEE_TYPE" envDefault:"Employee"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"15s"`
	InlineSelfie bool          `env:"INLINE_SELFIE" envDefault:"false"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME" envDefault:"hris_checkin"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"10"`
}

// ClockConfig tunes the trusted clock and its sources
type ClockConfig struct {
	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
	SourceTimeout   time.Duration `env:"SOURCE_TIMEOUT" envDefault:"5s"`
	MaxRounds       uint          `env:"MAX_ROUNDS" envDefault:"3"`
	RetryInitial    time.Duration `env:"RETRY_INITIAL" envDefault:"1s"`
	CacheDriver     string        `env:"CACHE_DRIVER" envDefault:"none"`
	MaxCachedOffset time.Duration `env:"CACHE_MAX_OFFSET" envDefault:"24h"`
}

// TimeAPIConfig holds the public fallback time sources
type TimeAPIConfig struct {
	WorldTimeAPIURL string `env:"WORLDTIMEAPI_URL" envDefault:"https://worldtimeapi.org"`
	TimeAPIIOURL    string `env:"TIMEAPIIO_URL" envDefault:"https://timeapi.io"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Prefix   string `env:"PREFIX" envDefault:"checkin"`
}

// TrackingConfig covers reverse geocoding and location freezing
type TrackingConfig struct {
	GeocoderURL       string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"hris-checkin/1.0"`
	GeocodeTimeout    time.Duration `env:"GEOCODE_TIMEOUT" envDefault:"10s"`
	FreezeTimeout     time.Duration `env:"LOCATION_FREEZE_TIMEOUT" envDefault:"10s"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return Parse(env.Options{})
}

// Parse builds the configuration from the process environment, or from
// opts.Environment when set, and validates it.
func Parse(opts env.Options) (*Config, error) {
	config := &Config{}
	if err := env.Parse(config, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Debug("Configuration loaded", "record_store", config.RecordStoreDriver, "clock_cache", config.Clock.CacheDriver)
	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}

	switch c.RecordStoreDriver {
	case DriverCRM:
		if c.CRM.BaseURL == "" {
			errs = append(errs, errors.New("CRM_BASE_URL is required"))
		} else if u, err := url.Parse(c.CRM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("CRM_BASE_URL is not a valid url: %q", c.CRM.BaseURL))
		}
		if c.CRM.APIKey == "" {
			errs = append(errs, errors.New("CRM_API_KEY is required"))
		}
	case DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("RECORD_STORE_DRIVER must be %s or %s, got %q", DriverCRM, DriverPostgres, c.RecordStoreDriver))
	}

	switch c.Clock.CacheDriver {
	case DriverNone, DriverRedis, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("CLOCK_CACHE_DRIVER must be none, redis or postgres, got %q", c.Clock.CacheDriver))
	}

	if c.UsesPostgres() && c.Database.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	if c.Clock.MaxRounds == 0 {
		errs = append(errs, errors.New("CLOCK_MAX_ROUNDS must be at least 1"))
	}
	if c.Clock.SyncInterval <= 0 {
		errs = append(errs, errors.New("CLOCK_SYNC_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}

// Location is the trusted-time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.App.Timezone)
}

// UsesPostgres reports whether any component needs the database.
func (c *Config) UsesPostgres() bool {
	return c.RecordStoreDriver == DriverPostgres || c.Clock.CacheDriver == DriverPostgres
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Database.User),
		url.QueryEscape(c.Database.Password),
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

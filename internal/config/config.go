// Package config loads and validates intake service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment names recognised by the service.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Application AppConfig       `mapstructure:"application"`
	Server      ServerConfig    `mapstructure:"server"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	DB          DBConfig        `mapstructure:"db"`
	CRM         CRMConfig       `mapstructure:"crm"`
	Email       EmailConfig     `mapstructure:"email"`
	PubSub      PubSubConfig    `mapstructure:"pubsub"`
	Reconcile   ReconcileConfig `mapstructure:"reconcile"`
}

// AppConfig describes the running service for tracing resources.
type AppConfig struct {
	ServiceName      string  `mapstructure:"service_name"`
	Version          string  `mapstructure:"version"`
	TraceSampleRatio float64 `mapstructure:"trace_sample_ratio"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port               int   `mapstructure:"port"`
	ReadTimeoutSeconds int   `mapstructure:"read_timeout_seconds"`
	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`
	TrustProxyHeaders  bool  `mapstructure:"trust_proxy_headers"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RateLimitConfig configures the submission limiter and its Redis backend.
type RateLimitConfig struct {
	RedisURL      string `mapstructure:"redis_url"`
	Limit         int    `mapstructure:"limit"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	Prefix        string `mapstructure:"prefix"`
	TimeoutMs     int    `mapstructure:"timeout_ms"`
}

// DBConfig controls access to the lead database.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// CRMConfig holds HubSpot connection settings.
type CRMConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Token          string `mapstructure:"token"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`

	// RequestsPerSecond and Burst throttle outbound HubSpot calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// EmailConfig selects the notification provider.
type EmailConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	FromAddress    string `mapstructure:"from_address"`
	OwnerAddress   string `mapstructure:"owner_address"`
	SiteName       string `mapstructure:"site_name"`
	SendThankYou   bool   `mapstructure:"send_thank_you"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PubSubConfig holds metadata for lead event publication.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ReconcileConfig tunes the out-of-band CRM reconciliation pass.
type ReconcileConfig struct {
	BatchSize         int `mapstructure:"batch_size"`
	Workers           int `mapstructure:"workers"`
	StaleAfterMinutes int `mapstructure:"stale_after_minutes"`
}

// LoadDotEnv populates the process environment from a dotenv file. A missing
// file is not an error; variables already set are never overridden.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load dotenv %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Email.Provider = strings.ToLower(strings.TrimSpace(cfg.Email.Provider))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("application.service_name", "contact-intake")
	v.SetDefault("application.version", "dev")
	v.SetDefault("application.trace_sample_ratio", 1.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("logging.development", true)
	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("rate_limit.redis_url", "")
	v.SetDefault("rate_limit.limit", 3)
	v.SetDefault("rate_limit.window_seconds", 3600)
	v.SetDefault("rate_limit.prefix", "contact_form")
	v.SetDefault("rate_limit.timeout_ms", 2000)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "leads")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.auto_migrate", false)
	v.SetDefault("crm.base_url", "https://api.hubapi.com")
	v.SetDefault("crm.token", "")
	v.SetDefault("crm.timeout_seconds", 10)
	v.SetDefault("crm.requests_per_second", 9.0)
	v.SetDefault("crm.burst", 10)
	v.SetDefault("email.provider", "none")
	v.SetDefault("email.api_key", "")
	v.SetDefault("email.base_url", "")
	v.SetDefault("email.from_address", "")
	v.SetDefault("email.owner_address", "")
	v.SetDefault("email.site_name", "Website")
	v.SetDefault("email.send_thank_you", false)
	v.SetDefault("email.timeout_seconds", 10)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("reconcile.batch_size", 50)
	v.SetDefault("reconcile.workers", 4)
	v.SetDefault("reconcile.stale_after_minutes", 15)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("environment must be one of development, test, production (got %q)", c.Environment)
	}
	if c.Application.TraceSampleRatio < 0 || c.Application.TraceSampleRatio > 1 {
		return fmt.Errorf("application.trace_sample_ratio must be within [0, 1]")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		return fmt.Errorf("server.read_timeout_seconds must be > 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be > 0")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be > 0")
	}
	if c.RateLimit.Prefix == "" {
		return fmt.Errorf("rate_limit.prefix must be set")
	}
	if c.CRM.TimeoutSeconds <= 0 {
		return fmt.Errorf("crm.timeout_seconds must be > 0")
	}
	if c.CRM.RequestsPerSecond < 0 {
		return fmt.Errorf("crm.requests_per_second must be >= 0")
	}
	switch c.Email.Provider {
	case "none":
	case "sendgrid", "postmark", "resend":
		if c.Email.APIKey == "" {
			return fmt.Errorf("email.api_key must be set for provider %s", c.Email.Provider)
		}
		if c.Email.FromAddress == "" || c.Email.OwnerAddress == "" {
			return fmt.Errorf("email.from_address and email.owner_address must be set for provider %s", c.Email.Provider)
		}
	default:
		return fmt.Errorf("email.provider must be one of none, sendgrid, postmark, resend (got %q)", c.Email.Provider)
	}
	if c.Reconcile.BatchSize <= 0 {
		return fmt.Errorf("reconcile.batch_size must be > 0")
	}
	if c.Reconcile.Workers <= 0 {
		return fmt.Errorf("reconcile.workers must be > 0")
	}
	if c.Reconcile.StaleAfterMinutes < 0 {
		return fmt.Errorf("reconcile.stale_after_minutes must be >= 0")
	}
	if c.IsProduction() {
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set in production")
		}
		if c.RateLimit.RedisURL == "" {
			return fmt.Errorf("rate_limit.redis_url must be set in production")
		}
		if c.CRM.Token == "" {
			return fmt.Errorf("crm.token must be set in production")
		}
	}
	return nil
}

// IsProduction reports whether the service runs with production guarantees.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// RateLimitWindow returns the limiter window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// StaleAfter returns how old a pending lead must be before reconcile picks it up.
func (c Config) StaleAfter() time.Duration {
	return time.Duration(c.Reconcile.StaleAfterMinutes) * time.Minute
}

// ReadTimeout bounds reading one request, body included. Handlers are not
// timed; each outbound client carries its own timeout.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

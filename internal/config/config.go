// Package config loads application configuration from the environment, with
// an optional YAML overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port            int           `env:"SERVER_PORT,default=8080" yaml:"port"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdown_timeout"`
}

// DatabaseConfig controls the PostgreSQL pool.
type DatabaseConfig struct {
	Driver          string `env:"DATABASE_DRIVER,default=postgres" yaml:"driver"`
	DSN             string `env:"DATABASE_DSN" yaml:"dsn"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=25" yaml:"max_open_conns"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300" yaml:"conn_max_lifetime"`
	AutoMigrate     bool   `env:"DATABASE_AUTO_MIGRATE,default=false" yaml:"auto_migrate"`
}

// RedisConfig controls the Redis client used for sessions and unread counters.
type RedisConfig struct {
	URL      string `env:"REDIS_URL" yaml:"url"`
	Addr     string `env:"REDIS_ADDR,default=localhost:6379" yaml:"addr"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB,default=0" yaml:"db"`
}

// ObjectStoreConfig controls the S3-compatible attachment store.
type ObjectStoreConfig struct {
	Endpoint  string        `env:"OBJECT_STORE_ENDPOINT" yaml:"endpoint"`
	AccessKey string        `env:"OBJECT_STORE_ACCESS_KEY" yaml:"access_key"`
	SecretKey string        `env:"OBJECT_STORE_SECRET_KEY" yaml:"secret_key"`
	Bucket    string        `env:"OBJECT_STORE_BUCKET,default=atrium-attachments" yaml:"bucket"`
	UseSSL    bool          `env:"OBJECT_STORE_USE_SSL,default=true" yaml:"use_ssl"`
	URLExpiry time.Duration `env:"OBJECT_STORE_URL_EXPIRY,default=15m" yaml:"url_expiry"`
}

// AuthConfig controls bearer-token validation and cookie sessions.
type AuthConfig struct {
	JWTSecret      string        `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
	SessionTTL     time.Duration `env:"AUTH_SESSION_TTL,default=12h" yaml:"session_ttl"`
	CookieSecure   bool          `env:"AUTH_COOKIE_SECURE,default=true" yaml:"cookie_secure"`
	PlatformAdmins []string      `env:"AUTH_PLATFORM_ADMINS" yaml:"platform_admins"`
}

// NotificationsConfig controls the webhook dispatcher.
type NotificationsConfig struct {
	DispatchSchedule string        `env:"NOTIFICATIONS_DISPATCH_SCHEDULE,default=@every 30s" yaml:"dispatch_schedule"`
	DispatchBatch    int           `env:"NOTIFICATIONS_DISPATCH_BATCH,default=100" yaml:"dispatch_batch"`
	WebhookTimeout   time.Duration `env:"NOTIFICATIONS_WEBHOOK_TIMEOUT,default=10s" yaml:"webhook_timeout"`
}

// AttachmentsConfig controls upload validation.
type AttachmentsConfig struct {
	MaxSizeBytes int64 `env:"ATTACHMENTS_MAX_SIZE_BYTES,default=26214400" yaml:"max_size_bytes"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

// RateLimitConfig controls per-caller request budgets.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED,default=true" yaml:"enabled"`
	RequestsPerSecond int  `env:"RATE_LIMIT_RPS,default=50" yaml:"requests_per_second"`
	Burst             int  `env:"RATE_LIMIT_BURST,default=100" yaml:"burst"`
}

// CORSConfig controls cross-origin access for browser callers.
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=*" yaml:"allowed_origins"`
}

// Config is the full application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	ObjectStore   ObjectStoreConfig   `yaml:"object_store"`
	Auth          AuthConfig          `yaml:"auth"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Attachments   AttachmentsConfig   `yaml:"attachments"`
	Logging       LoggingConfig       `yaml:"logging"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	CORS          CORSConfig          `yaml:"cors"`
}

// Load reads configuration from the environment. When ATRIUM_CONFIG_FILE is
// set, the named YAML file is applied on top of the environment values.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := strings.TrimSpace(os.Getenv("ATRIUM_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads configuration from the environment and then the given
// YAML file. It backs the migrate command's -config flag.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := applyFile(&cfg, path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints the decoder cannot express.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth session_ttl must be positive")
	}
	if c.Notifications.DispatchBatch <= 0 {
		return fmt.Errorf("notifications dispatch_batch must be positive")
	}
	if c.Attachments.MaxSizeBytes <= 0 {
		return fmt.Errorf("attachments max_size_bytes must be positive")
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rate limit requests_per_second must be positive when enabled")
	}
	return nil
}

// IsPlatformAdmin reports whether the user ID is configured as a platform
// administrator.
func (c *Config) IsPlatformAdmin(userID string) bool {
	for _, admin := range c.Auth.PlatformAdmins {
		if admin == userID {
			return true
		}
	}
	return false
}

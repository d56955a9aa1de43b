package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey is only accepted when ENV=development.
const devSigningKey = "medipt-development-signing-key-change-me"

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	PublicBaseURL string   `mapstructure:"PUBLIC_BASE_URL"`
	FrontendURL   string   `mapstructure:"FRONTEND_URL"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`
	CookieSecure  bool     `mapstructure:"COOKIE_SECURE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL     string `mapstructure:"REDIS_URL"`
	QueueBackend string `mapstructure:"QUEUE_BACKEND"`

	AuthSigningKey        string        `mapstructure:"AUTH_SIGNING_KEY"`
	AccessTokenTTL        time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL       time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	ActivationTokenTTL    time.Duration `mapstructure:"ACTIVATION_TOKEN_TTL"`
	PasswordResetTokenTTL time.Duration `mapstructure:"PASSWORD_RESET_TOKEN_TTL"`

	InvitationExpiryDays int `mapstructure:"INVITATION_EXPIRY_DAYS"`
	MaxInvitationResends int `mapstructure:"MAX_INVITATION_RESENDS"`

	TaskMaxRetries int           `mapstructure:"TASK_MAX_RETRIES"`
	TaskRetryDelay time.Duration `mapstructure:"TASK_RETRY_DELAY"`

	EmailBackend string `mapstructure:"EMAIL_BACKEND"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	EmailAPIURL  string `mapstructure:"EMAIL_API_URL"`
	EmailAPIKey  string `mapstructure:"EMAIL_API_KEY"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	MediaRoot      string `mapstructure:"MEDIA_ROOT"`
	MediaBaseURL   string `mapstructure:"MEDIA_BASE_URL"`

	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
}

var defaults = map[string]any{
	"PORT":                     "8000",
	"ENV":                      "development",
	"PUBLIC_BASE_URL":          "http://localhost:8000",
	"FRONTEND_URL":             "http://localhost:3000",
	"CORS_ORIGINS":             "http://localhost:3000",
	"COOKIE_SECURE":            true,
	"DB_MAX_CONNS":             20,
	"DB_MIN_CONNS":             2,
	"REDIS_URL":                "redis://localhost:6379/0",
	"QUEUE_BACKEND":            "redis",
	"ACCESS_TOKEN_TTL":         "5000m",
	"REFRESH_TOKEN_TTL":        "168h",
	"ACTIVATION_TOKEN_TTL":     "24h",
	"PASSWORD_RESET_TOKEN_TTL": "1h",
	"INVITATION_EXPIRY_DAYS":   7,
	"MAX_INVITATION_RESENDS":   3,
	"TASK_MAX_RETRIES":         3,
	"TASK_RETRY_DELAY":         "60s",
	"EMAIL_BACKEND":            "log",
	"EMAIL_FROM":               "medipt <no-reply@medipt.local>",
	"SMTP_PORT":                587,
	"STORAGE_BACKEND":          "fs",
	"MEDIA_ROOT":               "./media",
	"MEDIA_BASE_URL":           "http://localhost:8000/media",
}

var envOnly = []string{
	"DATABASE_URL", "AUTH_SIGNING_KEY",
	"SMTP_HOST", "SMTP_USERNAME", "SMTP_PASSWORD",
	"EMAIL_API_URL", "EMAIL_API_KEY", "MIGRATIONS_DIR",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
		_ = v.BindEnv(k)
	}
	for _, k := range envOnly {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.AuthSigningKey == "" && cfg.IsDev() {
		cfg.AuthSigningKey = devSigningKey
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// InvitationExpiry converts INVITATION_EXPIRY_DAYS to a duration.
func (c *Config) InvitationExpiry() time.Duration {
	return time.Duration(c.InvitationExpiryDays) * 24 * time.Hour
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if len(c.AuthSigningKey) < 32 && !c.IsDev() {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes outside development")
	}
	if c.IsProduction() && c.AuthSigningKey == devSigningKey {
		return fmt.Errorf("AUTH_SIGNING_KEY must be changed from the development default")
	}
	if c.QueueBackend != "redis" && c.QueueBackend != "memory" {
		return fmt.Errorf("QUEUE_BACKEND must be \"redis\" or \"memory\", got %q", c.QueueBackend)
	}
	if c.QueueBackend == "memory" && c.IsProduction() {
		return fmt.Errorf("QUEUE_BACKEND=memory loses queued email on restart and is not allowed in production")
	}
	switch c.EmailBackend {
	case "log":
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_BACKEND=smtp")
		}
	case "http":
		if c.EmailAPIURL == "" {
			return fmt.Errorf("EMAIL_API_URL is required when EMAIL_BACKEND=http")
		}
	default:
		return fmt.Errorf("EMAIL_BACKEND must be \"smtp\", \"http\" or \"log\", got %q", c.EmailBackend)
	}
	if c.StorageBackend != "fs" && c.StorageBackend != "memory" {
		return fmt.Errorf("STORAGE_BACKEND must be \"fs\" or \"memory\", got %q", c.StorageBackend)
	}
	if c.InvitationExpiryDays <= 0 {
		return fmt.Errorf("INVITATION_EXPIRY_DAYS must be positive")
	}
	if c.MaxInvitationResends < 0 {
		return fmt.Errorf("MAX_INVITATION_RESENDS must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":         c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":        c.RefreshTokenTTL,
		"ACTIVATION_TOKEN_TTL":     c.ActivationTokenTTL,
		"PASSWORD_RESET_TOKEN_TTL": c.PasswordResetTokenTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

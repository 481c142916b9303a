package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppName string `envconfig:"APP_NAME" default:"Agentic AI Slack Bot"`
	AppEnv  string `envconfig:"APP_ENV" default:"development"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8000"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// sqlite | mysql | postgres
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`
	// mysql demo:
	// app:apppass@tcp(127.0.0.1:3306)/agent_portal?charset=utf8mb4&parseTime=true&loc=Local
	DBDSN string `envconfig:"DB_DSN" default:"agent_portal.db"`

	JWTSecret       string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"30m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"168h"`

	// credential vault
	EncryptionKey string `envconfig:"VAULT_ENCRYPTION_KEY" default:"dev-vault-key-change-me"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	FrontendURL    string   `envconfig:"FRONTEND_URL"`

	// agent
	UnitPrice        float64       `envconfig:"USAGE_UNIT_PRICE" default:"0.00002"`
	VendorTimeout    time.Duration `envconfig:"VENDOR_TIMEOUT" default:"30s"`
	SummaryMinLength int           `envconfig:"SUMMARY_MIN_LENGTH" default:"50"`
	AzureAPIVersion  string        `envconfig:"AZURE_OPENAI_API_VERSION" default:"2023-05-15"`

	// slack team id -> owning user id, e.g. T0123ABCD:1,T0456EFGH:7
	SlackWorkspaces map[string]uint64 `envconfig:"SLACK_WORKSPACES"`

	GoogleRedirectURI string `envconfig:"GOOGLE_REDIRECT_URI" default:"http://localhost:8000/api/oauth/google/callback"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	log.Info().
		Str("app_env", cfg.AppEnv).
		Str("http_addr", cfg.HTTPAddr).
		Str("db_driver", cfg.DBDriver).
		Str("redis_addr", cfg.RedisAddr).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Float64("unit_price", cfg.UnitPrice).
		Dur("vendor_timeout", cfg.VendorTimeout).
		Int("slack_workspaces", len(cfg.SlackWorkspaces)).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.DBDriver) {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.IsProduction() {
		if c.JWTSecret == "dev-secret-change-me" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.EncryptionKey == "dev-vault-key-change-me" {
			return fmt.Errorf("VAULT_ENCRYPTION_KEY must be set in production")
		}
	}
	if c.VendorTimeout <= 0 {
		c.VendorTimeout = 30 * time.Second
	}
	if c.SummaryMinLength <= 0 {
		c.SummaryMinLength = 50
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Frontend returns where OAuth callbacks redirect the browser to.
func (c *Config) Frontend() string {
	if c.FrontendURL != "" {
		return strings.TrimRight(c.FrontendURL, "/")
	}
	if len(c.AllowedOrigins) > 0 {
		return strings.TrimRight(c.AllowedOrigins[0], "/")
	}
	return ""
}

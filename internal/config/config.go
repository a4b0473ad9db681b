package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port int `yaml:"port" env:"SERVER_PORT"`
}

type DatabaseConfig struct {
	DSN string `yaml:"url" env:"DATABASE_URL"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int    `yaml:"smtp_port" env:"SMTP_PORT"`
	SMTPUser     string `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPassword string `yaml:"smtp_password" env:"SMTP_PASSWORD"`
	FromEmail    string `yaml:"from_email" env:"SMTP_FROM_EMAIL"`
}

type AuthConfig struct {
	// Access and refresh tokens are signed with distinct secrets so that
	// rotating or leaking one does not affect the other.
	AccessTokenSecret  string `yaml:"access_token_secret" env:"ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string `yaml:"refresh_token_secret" env:"REFRESH_TOKEN_SECRET"`

	// Expiries in seconds.
	AccessTokenExpiry  int `yaml:"access_token_expiry" env:"ACCESS_TOKEN_EXPIRY"`
	RefreshTokenExpiry int `yaml:"refresh_token_expiry" env:"REFRESH_TOKEN_EXPIRY"`

	BcryptCost int `yaml:"bcrypt_cost" env:"BCRYPT_COST"`

	// Base URL the reset-password link in the email points at; the plaintext
	// token is appended as the last path segment.
	ForgotPasswordRedirectURL string `yaml:"forgot_password_redirect_url" env:"FORGOT_PASSWORD_REDIRECT_URL"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ORIGIN" envSeparator:","`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Email    EmailConfig    `yaml:"email"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`
}

// LoadConfig reads the YAML file at path (skipped when path is empty), then
// applies environment overrides, then fills defaults. Secrets are expected to
// arrive via environment, not the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	if cfg.Auth.AccessTokenSecret == "" || cfg.Auth.RefreshTokenSecret == "" {
		return nil, fmt.Errorf("auth: access_token_secret and refresh_token_secret are required")
	}
	if cfg.Auth.AccessTokenSecret == cfg.Auth.RefreshTokenSecret {
		return nil, fmt.Errorf("auth: access and refresh token secrets must differ")
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Auth.AccessTokenExpiry <= 0 {
		c.Auth.AccessTokenExpiry = 86400 // 24h
	}
	if c.Auth.RefreshTokenExpiry <= 0 {
		c.Auth.RefreshTokenExpiry = 86400
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:5173"}
	}
}

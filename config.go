package authflow

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvConfig is the environment backed Config implementation. Every value
// has a development default except the signing key, which is required.
type EnvConfig struct {
	SigningKey      string   `env:"AUTH_SIGNING_KEY,required,notEmpty"`
	SigningMethod   string   `env:"AUTH_SIGNING_METHOD" envDefault:"HS256"`
	TokenExpiration int      `env:"AUTH_TOKEN_EXPIRATION" envDefault:"72"`
	Issuer          string   `env:"AUTH_ISSUER" envDefault:"authflow"`
	Audience        []string `env:"AUTH_AUDIENCE" envDefault:"authflow"`

	ContextKey           string `env:"AUTH_CONTEXT_KEY" envDefault:"user"`
	RejectedRouteKey     string `env:"AUTH_REJECTED_ROUTE_KEY" envDefault:"rejected_route"`
	RejectedRouteDefault string `env:"AUTH_REJECTED_ROUTE_DEFAULT" envDefault:"/dashboard"`

	ChallengeWindowMinutes int `env:"AUTH_CHALLENGE_WINDOW_MINUTES" envDefault:"15"`

	PasswordMinLength     int  `env:"AUTH_PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordRequireUpper  bool `env:"AUTH_PASSWORD_REQUIRE_UPPER" envDefault:"true"`
	PasswordRequireLower  bool `env:"AUTH_PASSWORD_REQUIRE_LOWER" envDefault:"true"`
	PasswordRequireDigit  bool `env:"AUTH_PASSWORD_REQUIRE_DIGIT" envDefault:"true"`
	PasswordRequireSymbol bool `env:"AUTH_PASSWORD_REQUIRE_SYMBOL" envDefault:"true"`

	Mail  MailConfig  `envPrefix:"AUTH_MAIL_"`
	Redis RedisConfig `envPrefix:"AUTH_REDIS_"`
}

// MailConfig configures the HTTP mail dispatcher.
type MailConfig struct {
	Endpoint   string `env:"ENDPOINT"`
	ServiceID  string `env:"SERVICE_ID"`
	PublicKey  string `env:"PUBLIC_KEY"`
	PrivateKey string `env:"PRIVATE_KEY"`

	TemplateVerify  string `env:"TEMPLATE_VERIFY" envDefault:"template_verify"`
	TemplateRecover string `env:"TEMPLATE_RECOVER" envDefault:"template_recover"`
	TemplateWelcome string `env:"TEMPLATE_WELCOME" envDefault:"template_welcome"`
	TemplateContact string `env:"TEMPLATE_CONTACT" envDefault:"template_contact"`
	TemplateReset   string `env:"TEMPLATE_RESET" envDefault:"template_reset"`
}

// RedisConfig configures the optional redis backed profile cache and
// notice store. Leave Addr empty to use the in memory implementations.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads a .env file when present, then parses configuration
// from environment variables.
func LoadConfig() (*EnvConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *EnvConfig) Sanitize() {
	if c.TokenExpiration <= 0 {
		c.TokenExpiration = 72
	}

	if c.ChallengeWindowMinutes <= 0 {
		c.ChallengeWindowMinutes = 15
	}

	if c.PasswordMinLength < 6 {
		c.PasswordMinLength = 6
	}

	if c.ContextKey == "" {
		c.ContextKey = "user"
	}

	if c.RejectedRouteKey == "" {
		c.RejectedRouteKey = "rejected_route"
	}
}

func (c *EnvConfig) GetSigningKey() string    { return c.SigningKey }
func (c *EnvConfig) GetSigningMethod() string { return c.SigningMethod }
func (c *EnvConfig) GetTokenExpiration() int  { return c.TokenExpiration }
func (c *EnvConfig) GetIssuer() string        { return c.Issuer }
func (c *EnvConfig) GetAudience() []string    { return c.Audience }

func (c *EnvConfig) GetContextKey() string           { return c.ContextKey }
func (c *EnvConfig) GetRejectedRouteKey() string     { return c.RejectedRouteKey }
func (c *EnvConfig) GetRejectedRouteDefault() string { return c.RejectedRouteDefault }

func (c *EnvConfig) GetChallengeWindow() time.Duration {
	return time.Duration(c.ChallengeWindowMinutes) * time.Minute
}

func (c *EnvConfig) GetPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:     c.PasswordMinLength,
		RequireUpper:  c.PasswordRequireUpper,
		RequireLower:  c.PasswordRequireLower,
		RequireDigit:  c.PasswordRequireDigit,
		RequireSymbol: c.PasswordRequireSymbol,
	}
}

package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAccessTokenTTL    = time.Hour
	DefaultEphemeralTokenTTL = 15 * time.Minute
	DefaultSigningMethod     = "HS512"
	minSigningKeyLength      = 32
)

// Config holds auth options
type Config struct {
	SigningKey           string        `env:"AUTH_SIGNING_KEY" json:"signing_key"`
	SigningMethod        string        `env:"AUTH_SIGNING_METHOD" envDefault:"HS512" json:"signing_method"`
	Issuer               string        `env:"AUTH_ISSUER" json:"issuer"`
	Audience             []string      `env:"AUTH_AUDIENCE" envSeparator:"," json:"audience"`
	AccessTokenTTL       time.Duration `env:"AUTH_ACCESS_TOKEN_TTL" envDefault:"1h" json:"access_token_ttl"`
	EphemeralTokenTTL    time.Duration `env:"AUTH_EPHEMERAL_TOKEN_TTL" envDefault:"15m" json:"ephemeral_token_ttl"`
	FrontendURL          string        `env:"AUTH_FRONTEND_URL" envDefault:"http://localhost:5173" json:"frontend_url"`
	RequireVerifiedEmail bool          `env:"AUTH_REQUIRE_VERIFIED_EMAIL" envDefault:"false" json:"require_verified_email"`
	DeterministicIDs     bool          `env:"AUTH_DETERMINISTIC_IDS" envDefault:"false" json:"deterministic_ids"`
	PasswordCost         int           `env:"AUTH_PASSWORD_COST" envDefault:"10" json:"password_cost"`
}

// LoadConfigFromEnv reads the auth configuration from the environment
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

func (c *Config) applyDefaults() {
	if c.SigningMethod == "" {
		c.SigningMethod = DefaultSigningMethod
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.EphemeralTokenTTL <= 0 {
		c.EphemeralTokenTTL = DefaultEphemeralTokenTTL
	}
	if c.PasswordCost == 0 {
		c.PasswordCost = bcrypt.DefaultCost
	}
	c.FrontendURL = strings.TrimRight(c.FrontendURL, "/")
}

// Validate checks the configuration
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(minSigningKeyLength, 0)),
		validation.Field(&c.SigningMethod, validation.In("HS256", "HS384", "HS512")),
		validation.Field(&c.AccessTokenTTL, validation.Min(time.Second)),
		validation.Field(&c.EphemeralTokenTTL, validation.Min(time.Second)),
		validation.Field(&c.FrontendURL, validation.Required, is.RequestURL),
		validation.Field(&c.PasswordCost, validation.Min(bcrypt.MinCost), validation.Max(bcrypt.MaxCost)),
	)
}

// TokenConfig returns the codec subset of the configuration
func (c Config) TokenConfig() TokenConfig {
	return TokenConfig{
		SigningKey:    []byte(c.SigningKey),
		SigningMethod: c.SigningMethod,
		Issuer:        c.Issuer,
		Audience:      c.Audience,
	}
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.SigningKey != "" {
		c.SigningKey = "********"
	}
	return c
}

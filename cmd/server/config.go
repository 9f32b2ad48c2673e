package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"

	auth "github.com/goliatone/go-session-auth"
	"github.com/goliatone/go-session-auth/mail"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

type ServerConfig struct {
	Addr      string `env:"SERVER_ADDR" envDefault:":8572" json:"addr"`
	DBDriver  string `env:"DB_DRIVER" envDefault:"sqlite" json:"db_driver"`
	DSN       string `env:"DB_DSN" envDefault:"file:session_auth.db?cache=shared" json:"dsn"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" json:"log_level"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text" json:"log_format"`
	Metrics   bool   `env:"METRICS_ENABLED" envDefault:"true" json:"metrics"`
}

type AppConfig struct {
	Server ServerConfig `json:"server"`
	Auth   auth.Config  `json:"auth"`
	Mail   mail.Config  `json:"mail"`
}

func loadConfig() (AppConfig, error) {
	cfg := AppConfig{}

	if err := env.Parse(&cfg.Server); err != nil {
		return cfg, fmt.Errorf("server config: %w", err)
	}

	if err := env.Parse(&cfg.Mail); err != nil {
		return cfg, fmt.Errorf("mail config: %w", err)
	}

	authCfg, err := auth.LoadConfigFromEnv()
	if err != nil {
		return cfg, fmt.Errorf("auth config: %w", err)
	}
	cfg.Auth = authCfg

	return cfg, cfg.Server.Validate()
}

func (c ServerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In(driverSQLite, driverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.LogFormat, validation.In("text", "json")),
	)
}

const redactedSecret = "********"

func (c AppConfig) Redacted() AppConfig {
	c.Server.DSN = redactDSN(c.Server.DSN)
	c.Auth = c.Auth.Redacted()
	c.Mail = c.Mail.Redacted()
	return c
}

// redactDSN masks the password of URL style and key=value style DSNs
func redactDSN(dsn string) string {
	if u, err := url.Parse(dsn); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redactedSecret)
			return u.String()
		}
		return dsn
	}

	fields := strings.Fields(dsn)
	masked := false
	for i, field := range fields {
		key, _, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(key, "password") {
			fields[i] = key + "=" + redactedSecret
			masked = true
		}
	}
	if !masked {
		return dsn
	}
	return strings.Join(fields, " ")
}

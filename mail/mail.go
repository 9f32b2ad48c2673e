package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	ProviderLog      = "log"
	ProviderMailgun  = "mailgun"
	ProviderSendGrid = "sendgrid"

	defaultTimeout = 30 * time.Second
)

// ErrInvalidConfig is returned when a provider is missing required settings
var ErrInvalidConfig = errors.New("invalid mail configuration")

// Sender delivers a single plain text message
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for all mail providers
type Config struct {
	Provider string         `env:"MAIL_PROVIDER" envDefault:"log" json:"provider"`
	From     string         `env:"MAIL_FROM" envDefault:"no-reply@localhost" json:"from"`
	Timeout  time.Duration  `env:"MAIL_TIMEOUT" envDefault:"30s" json:"timeout"`
	Mailgun  MailgunConfig  `envPrefix:"MAILGUN_" json:"mailgun"`
	SendGrid SendGridConfig `envPrefix:"SENDGRID_" json:"sendgrid"`
}

// Redacted returns a copy safe to print
func (c Config) Redacted() Config {
	if c.Mailgun.Key != "" {
		c.Mailgun.Key = "********"
	}
	if c.SendGrid.Key != "" {
		c.SendGrid.Key = "********"
	}
	return c
}

// NewSender returns the sender for the configured provider
func NewSender(cfg Config, logger Logger) (Sender, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderLog:
		return NewLogSender(logger), nil
	case ProviderMailgun:
		mc := cfg.Mailgun
		if mc.From == "" {
			mc.From = cfg.From
		}
		return NewMailgunSender(mc, timeout)
	case ProviderSendGrid:
		sc := cfg.SendGrid
		if sc.From == "" {
			sc.From = cfg.From
		}
		return NewSendGridSender(sc, timeout)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// LogSender writes messages to the logger instead of delivering them
type LogSender struct {
	logger Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.logger != nil {
		s.logger.Info("mail message", "to", to, "subject", subject, "body", body)
	}
	return nil
}

// SenderFunc adapts a function to the Sender interface
type SenderFunc func(ctx context.Context, to, subject, body string) error

func (f SenderFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

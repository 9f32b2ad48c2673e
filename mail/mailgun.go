package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

// MailgunConfig holds the configuration for Mailgun
type MailgunConfig struct {
	Key    string `env:"KEY" json:"key"`
	Domain string `env:"DOMAIN" json:"domain"`
	From   string `env:"FROM" json:"from"`
}

type mailgunClient interface {
	NewMessage(from, subject, text string, to ...string) *mailgun.Message
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// MailgunSender implements Sender for Mailgun
type MailgunSender struct {
	client  mailgunClient
	from    string
	timeout time.Duration
}

// NewMailgunSender validates the configuration and builds the client
func NewMailgunSender(cfg MailgunConfig, timeout time.Duration) (*MailgunSender, error) {
	if cfg.Key == "" || cfg.Domain == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: mailgun requires key, domain and from", ErrInvalidConfig)
	}
	return newMailgunSender(mailgun.NewMailgun(cfg.Domain, cfg.Key), cfg.From, timeout), nil
}

func newMailgunSender(client mailgunClient, from string, timeout time.Duration) *MailgunSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &MailgunSender{client: client, from: from, timeout: timeout}
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	message := s.client.NewMessage(s.from, subject, body)
	if err := message.AddRecipient(to); err != nil {
		return fmt.Errorf("mailgun: add recipient: %w", err)
	}

	if _, _, err := s.client.Send(ctx, message); err != nil {
		return fmt.Errorf("mailgun: send: %w", err)
	}

	return nil
}

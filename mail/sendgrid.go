package mail

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig holds the configuration for SendGrid
type SendGridConfig struct {
	Key      string `env:"KEY" json:"key"`
	From     string `env:"FROM" json:"from"`
	FromName string `env:"FROM_NAME" envDefault:"Accounts" json:"from_name"`
}

type sendgridClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridSender implements Sender for SendGrid
type SendGridSender struct {
	client   sendgridClient
	from     string
	fromName string
	timeout  time.Duration
}

// NewSendGridSender validates the configuration and builds the client
func NewSendGridSender(cfg SendGridConfig, timeout time.Duration) (*SendGridSender, error) {
	if cfg.Key == "" || cfg.From == "" {
		return nil, fmt.Errorf("%w: sendgrid requires key and from", ErrInvalidConfig)
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.Key), cfg, timeout), nil
}

func newSendGridSender(client sendgridClient, cfg SendGridConfig, timeout time.Duration) *SendGridSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &SendGridSender{client: client, from: cfg.From, fromName: cfg.FromName, timeout: timeout}
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	from := sgmail.NewEmail(s.fromName, s.from)
	recipient := sgmail.NewEmail("", to)
	htmlContent := strings.ReplaceAll(html.EscapeString(body), "\n", "<br>")
	message := sgmail.NewSingleEmail(from, subject, recipient, body, htmlContent)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: send: %w", err)
	}

	if response.StatusCode != 202 {
		return fmt.Errorf("sendgrid: unexpected status code %d", response.StatusCode)
	}

	return nil
}

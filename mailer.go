package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Mailer delivers a plain text message
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to, subject, body string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}

const (
	verifyEmailPath   = "/verify-email"
	resetPasswordPath = "/reset-password"
)

func actionLink(frontendURL, path, token string) string {
	return frontendURL + path + "?token=" + url.QueryEscape(token)
}

func verificationMessage(frontendURL, token string, ttl time.Duration) (string, string) {
	link := actionLink(frontendURL, verifyEmailPath, token)
	body := fmt.Sprintf(
		"Welcome!\n\nConfirm your email address by opening the link below:\n%s\n\nThe link expires in %s.",
		link, ttl,
	)
	return "Confirm your email address", body
}

func passwordResetMessage(frontendURL, token string, ttl time.Duration) (string, string) {
	link := actionLink(frontendURL, resetPasswordPath, token)
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nChoose a new password here:\n%s\n\nThe link expires in %s. If you did not ask for this you can ignore this message.",
		link, ttl,
	)
	return "Reset your password", body
}

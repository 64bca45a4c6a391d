package utils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer sends account notices. Password reset itself is not offered, the
// notice only tells the owner that a reset was asked for.
type Mailer interface {
	SendPasswordResetNotice(ctx context.Context, email string) error
}

type SendGridMailer struct {
	client   *sendgrid.Client
	from     *mail.Email
	resetURL string
	logger   *slog.Logger
}

func NewSendGridMailer(apiKey, fromAddress, supportURL string, logger *slog.Logger) *SendGridMailer {
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     mail.NewEmail("Open Days Support", fromAddress),
		resetURL: supportURL,
		logger:   logger,
	}
}

func (m *SendGridMailer) SendPasswordResetNotice(ctx context.Context, email string) error {
	subject := "Password reset requested"
	to := mail.NewEmail("", email)

	plainTextContent := "A password reset was requested for your account. " +
		"Please contact support to complete it: " + m.resetURL
	htmlContent := "<p>A password reset was requested for your account.</p>" +
		"<p>Please contact support to complete it: <a href=\"" + m.resetURL + "\">" + m.resetURL + "</a></p>"

	message := mail.NewSingleEmail(m.from, subject, to, plainTextContent, htmlContent)
	response, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d", response.StatusCode)
	}

	m.logger.Info("password reset notice sent", "status", response.StatusCode)
	return nil
}

// NoopMailer is used when no mail provider is configured.
type NoopMailer struct{}

func (NoopMailer) SendPasswordResetNotice(context.Context, string) error { return nil }

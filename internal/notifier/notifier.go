package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"court-watcher/internal/config"

	"github.com/rs/zerolog"
)

// Notifier delivers a rendered alert to a contact address. Implementations
// must treat a disabled transport or missing contact as a no-op.
type Notifier interface {
	Send(ctx context.Context, contact, subject, body string) error
}

// EmailNotifier sends alerts over SMTP with optional STARTTLS and auth.
type EmailNotifier struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewEmailNotifier(cfg *config.Config, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, logger: logger}
}

func (n *EmailNotifier) Send(ctx context.Context, contact, subject, body string) error {
	if !n.cfg.SMTPEnabled {
		return nil
	}
	if n.cfg.SMTPHost == "" {
		n.logger.Warn().Msg("SMTP host not configured; skipping email send")
		return nil
	}
	if contact == "" {
		return nil
	}

	addr := net.JoinHostPort(n.cfg.SMTPHost, fmt.Sprintf("%d", n.cfg.SMTPPort))

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}
	// The deadline has to cover the whole SMTP conversation, not just the
	// dial: a stalled server would otherwise block the sync loop.
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("failed to set connection deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, n.cfg.SMTPHost)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if n.cfg.SMTPUseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: n.cfg.SMTPHost}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if n.cfg.SMTPUsername != "" && n.cfg.SMTPPassword != "" {
		auth := smtp.PlainAuth("", n.cfg.SMTPUsername, n.cfg.SMTPPassword, n.cfg.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(n.cfg.SMTPFromAddress); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(contact); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open message body: %w", err)
	}
	msg := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		n.cfg.SMTPFromAddress, contact, subject, body,
	)
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	if err := client.Quit(); err != nil {
		n.logger.Debug().Err(err).Msg("SMTP quit failed")
	}

	n.logger.Info().Str("contact", contact).Str("subject", subject).Msg("alert email sent")
	return nil
}

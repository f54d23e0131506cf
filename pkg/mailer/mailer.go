package mailer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer dispatches email. Callers treat delivery as fire-and-forget: a
// returned error is logged, never propagated into the triggering operation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig carries credentials for the SMTP dispatcher.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers mail over SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

// NewSMTP constructs an SMTP mailer.
func NewSMTP(cfg SMTPConfig, logger zerolog.Logger) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and sender address must be provided")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}

	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger.With().Str("component", "smtp_mailer").Logger(),
	}, nil
}

// Send delivers one message. The context is honoured up front; gomail itself
// does not support cancellation mid-dial.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("email sent")
	return nil
}

// LogMailer writes messages to the log instead of delivering them. Used in
// development and tests.
type LogMailer struct {
	logger zerolog.Logger
}

// NewLog constructs a log-only mailer.
func NewLog(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With().Str("component", "log_mailer").Logger()}
}

// Send logs the message and reports success.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.HTML)).
		Msg("email suppressed (log mailer)")
	return nil
}

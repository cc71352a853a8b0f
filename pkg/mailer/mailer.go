package mailer

import (
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/laundryos/auth-api/pkg/config"
)

// Sender delivers plain-text mail over SMTP. Delivery is best-effort; the
// caller decides what to do with a failure.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender sends mail through a single SMTP endpoint.
type SMTPSender struct {
	dialer *mail.Dialer
	from   string
}

// NewSMTPSender builds a sender from SMTP configuration.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send composes and dispatches a plain-text message.
func (s *SMTPSender) Send(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

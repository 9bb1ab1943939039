// Package mail sends templated notification emails. Delivery is
// best-effort: callers log failures and never fail a state transition on
// them.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"ticketly/internal/config"
)

// Notifier dispatches a single HTML email.
type Notifier interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

type SMTPMailer struct {
	cfg config.EmailConfig
}

func NewSMTPMailer(cfg config.EmailConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort

	var msg strings.Builder
	msg.WriteString("From: " + m.cfg.From + "\r\n")
	msg.WriteString("To: " + to + "\r\n")
	msg.WriteString("Subject: " + subject + "\r\n")
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	var auth smtp.Auth
	if m.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", m.cfg.SMTPUsername, m.cfg.SMTPPassword, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// PaymentAcceptedBody renders the acceptance notification. qrPNG, when
// present, is embedded as a base64 data URI entry pass.
func PaymentAcceptedBody(eventTitle string, qrPNG []byte) string {
	var b strings.Builder
	b.WriteString("<h3>Payment Accepted</h3>")
	b.WriteString(fmt.Sprintf("<p>Your payment for <b>%s</b> has been accepted.</p>", eventTitle))
	if len(qrPNG) > 0 {
		b.WriteString(fmt.Sprintf(`<p>Your entry pass:</p><img src="data:image/png;base64,%s" alt="entry pass"/>`, base64PNG(qrPNG)))
	}
	return b.String()
}

func PaymentRejectedBody(eventTitle string) string {
	return fmt.Sprintf(
		"<h3>Payment Rejected</h3><p>Your payment for <b>%s</b> has been rejected.</p><p>Any used points or vouchers have been restored.</p>",
		eventTitle)
}

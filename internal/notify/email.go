// Package notify delivers run reports by email and operational alerts to a
// Teams channel. Both transports degrade to a logged no-op when unconfigured
// so sync runs never fail on a missing mail server.
package notify

import (
	"fmt"
	"io"
	"log/slog"

	gomail "gopkg.in/gomail.v2"
)

// Attachment is a file carried by an email.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Email is one outbound message.
type Email struct {
	To          []string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// SMTPConfig carries mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer sends email over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	logger *slog.Logger
	// send is swappable for tests; defaults to gomail DialAndSend.
	send func(*gomail.Message) error
}

// NewMailer builds a Mailer. An empty host yields a no-op mailer.
func NewMailer(cfg SMTPConfig, logger *slog.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	m.send = func(msg *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
		return d.DialAndSend(msg)
	}
	return m
}

// Enabled reports whether a mail server is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Host != ""
}

// Send delivers one email. Unconfigured mailers log and return nil.
func (m *Mailer) Send(email Email) error {
	if !m.Enabled() {
		m.logger.Info("mailer disabled, skipping email", slog.String("subject", email.Subject))
		return nil
	}
	if len(email.To) == 0 {
		return fmt.Errorf("notify: email %q has no recipients", email.Subject)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	if email.Text != "" {
		msg.SetBody("text/plain", email.Text)
	}
	if email.HTML != "" {
		if email.Text != "" {
			msg.AddAlternative("text/html", email.HTML)
		} else {
			msg.SetBody("text/html", email.HTML)
		}
	}
	for _, att := range email.Attachments {
		att := att
		msg.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(att.Data)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {att.MIME},
			}),
		)
	}

	if err := m.send(msg); err != nil {
		return fmt.Errorf("notify: send %q: %w", email.Subject, err)
	}
	m.logger.Info("email sent",
		slog.String("subject", email.Subject),
		slog.Int("recipients", len(email.To)),
		slog.Int("attachments", len(email.Attachments)),
	)
	return nil
}

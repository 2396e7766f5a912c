// Package notify emails run artifacts to the desk. Notification failures
// are logged and swallowed: a run that produced its outputs never fails
// because the mail did not go out.
package notify

import (
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kpatel-quant/fnopipeline/internal/config"
)

// Notifier delivers a run report with its attachments.
type Notifier interface {
	Send(subject, body string, attachments []string) error
}

// Noop discards every notification. Used when email is disabled.
type Noop struct{}

func (Noop) Send(string, string, []string) error { return nil }

// SendGridNotifier sends through the SendGrid v3 API. Credentials come from
// config with an environment fallback, so the API key stays out of the
// config file.
type SendGridNotifier struct {
	apiKey     string
	from       *mail.Email
	recipients []string
	logger     *log.Logger
}

// NewSendGrid builds a notifier from config. Returns Noop when email is
// disabled or no key is available.
func NewSendGrid(cfg config.EmailConfig, logger *log.Logger) Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if !cfg.Enabled {
		return Noop{}
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("SENDGRID_API_KEY")
	}
	fromEmail := cfg.FromEmail
	if fromEmail == "" {
		fromEmail = os.Getenv("SENDGRID_FROM_EMAIL")
	}
	if apiKey == "" || fromEmail == "" || len(cfg.Recipients) == 0 {
		logger.Printf("email enabled but not fully configured, notifications disabled")
		return Noop{}
	}

	return &SendGridNotifier{
		apiKey:     apiKey,
		from:       mail.NewEmail(cfg.FromName, fromEmail),
		recipients: cfg.Recipients,
		logger:     logger,
	}
}

// Send mails the report to every recipient with the files attached.
// Unreadable attachments are skipped with a log line; the mail still goes.
func (n *SendGridNotifier) Send(subject, body string, attachments []string) error {
	m := mail.NewV3Mail()
	m.SetFrom(n.from)
	m.Subject = subject

	p := mail.NewPersonalization()
	for _, r := range n.recipients {
		p.AddTos(mail.NewEmail("", r))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", body))

	for _, path := range attachments {
		a, err := buildAttachment(path)
		if err != nil {
			n.logger.Printf("skipping attachment %s: %v", path, err)
			continue
		}
		m.AddAttachment(a)
	}

	client := sendgrid.NewSendClient(n.apiKey)
	resp, err := client.Send(m)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid rejected mail: status %d: %s", resp.StatusCode, resp.Body)
	}
	n.logger.Printf("sent %q to %d recipients (%d attachments)", subject, len(n.recipients), len(attachments))
	return nil
}

func buildAttachment(path string) (*mail.Attachment, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- attachment paths come from our own run outputs
	if err != nil {
		return nil, err
	}
	a := mail.NewAttachment()
	a.SetContent(base64.StdEncoding.EncodeToString(data))
	a.SetFilename(filepath.Base(path))
	a.SetType(contentType(path))
	a.SetDisposition("attachment")
	return a, nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

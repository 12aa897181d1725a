package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridConfig configures SendGridNotifier.
type SendGridConfig struct {
	APIKey   string
	FromName string
	FromAddr string
	// Host overrides the API host (tests, EU data residency).
	Host string
}

// SendGridNotifier delivers messages through the SendGrid v3 mail API.
type SendGridNotifier struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridNotifier builds a notifier. The API key and sender are required.
func NewSendGridNotifier(cfg SendGridConfig) (*SendGridNotifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("notify: sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromAddr) == "" {
		return nil, fmt.Errorf("notify: sender address is required")
	}

	req := sendgrid.GetRequest(cfg.APIKey, "/v3/mail/send", strings.TrimRight(cfg.Host, "/"))
	req.Method = "POST"

	return &SendGridNotifier{
		client: &sendgrid.Client{Request: req},
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddr),
	}, nil
}

// Send implements Sender.
func (n *SendGridNotifier) Send(ctx context.Context, m Message) error {
	msg := mail.NewSingleEmailPlainText(n.from, m.Subject, mail.NewEmail(m.ToName, m.ToEmail), m.Text)

	// SendWithContext stores the body on the client; send from a copy.
	c := *n.client
	resp, err := c.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("notify: sendgrid: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: sendgrid: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// WelcomeEmail implements Notifier.
func (n *SendGridNotifier) WelcomeEmail(ctx context.Context, name, email string) error {
	return n.Send(ctx, WelcomeMessage(name, email))
}

// CancelationEmail implements Notifier.
func (n *SendGridNotifier) CancelationEmail(ctx context.Context, name, email string) error {
	return n.Send(ctx, CancelationMessage(name, email))
}

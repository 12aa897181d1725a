package notify

import (
	"context"
	"log/slog"
)

// LogNotifier records messages in the log instead of sending them.
// Recipient addresses are not logged.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to log.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

// Send implements Sender.
func (n *LogNotifier) Send(ctx context.Context, m Message) error {
	n.log.InfoContext(ctx, "notify.email.skip_delivery", "subject", m.Subject, "chars", len(m.Text))
	return nil
}

// WelcomeEmail implements Notifier.
func (n *LogNotifier) WelcomeEmail(ctx context.Context, name, email string) error {
	return n.Send(ctx, WelcomeMessage(name, email))
}

// CancelationEmail implements Notifier.
func (n *LogNotifier) CancelationEmail(ctx context.Context, name, email string) error {
	return n.Send(ctx, CancelationMessage(name, email))
}

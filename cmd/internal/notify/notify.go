package notify

import (
	"context"
	"errors"
	"fmt"
)

// Notifier sends account lifecycle emails.
type Notifier interface {
	WelcomeEmail(ctx context.Context, name, email string) error
	CancelationEmail(ctx context.Context, name, email string) error
}

// Message is a plain-text email to one recipient.
type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
}

// Kind names a lifecycle message.
type Kind string

const (
	KindWelcome     Kind = "welcome"
	KindCancelation Kind = "cancelation"
)

// ErrQueueFull is returned by Dispatcher when the buffer is full and the
// message was dropped.
var ErrQueueFull = errors.New("notify: queue full")

// ErrClosed is returned by Dispatcher after Close.
var ErrClosed = errors.New("notify: dispatcher closed")

// WelcomeMessage builds the signup email.
func WelcomeMessage(name, email string) Message {
	return Message{
		ToName:  name,
		ToEmail: email,
		Subject: "Thanks for joining in!",
		Text:    fmt.Sprintf("Welcome to the app, %s. Let me know how you get along with the app.", name),
	}
}

// CancelationMessage builds the account deletion email.
func CancelationMessage(name, email string) Message {
	return Message{
		ToName:  name,
		ToEmail: email,
		Subject: "Sorry to see you leaving.",
		Text:    fmt.Sprintf("Goodbye, %s. Hope to see you back sometimes soon.", name),
	}
}

// Sender delivers a built message. SendGridNotifier and LogNotifier implement it.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

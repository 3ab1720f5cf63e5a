// Package notify delivers verification messages to an email address or phone.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Message struct {
	Channel Channel
	Target  string
	Subject string
	Body    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of delivering them. It is
// the development fallback and the SMS channel until a provider is wired.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	n.Logger.InfoContext(ctx, "notification",
		"channel", msg.Channel,
		"target", msg.Target,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// Router dispatches by channel.
type Router struct {
	Email Notifier
	SMS   Notifier
}

func (r Router) Send(ctx context.Context, msg Message) error {
	var n Notifier
	switch msg.Channel {
	case ChannelEmail:
		n = r.Email
	case ChannelSMS:
		n = r.SMS
	}
	if n == nil {
		return fmt.Errorf("no notifier for channel %q", msg.Channel)
	}
	return n.Send(ctx, msg)
}

// Async hands messages to a background goroutine so delivery never delays the
// caller. Failures are logged at WARN; Send itself always returns nil.
type Async struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, logger *slog.Logger, timeout time.Duration) *Async {
	return &Async{next: next, logger: logger, timeout: timeout}
}

func (a *Async) Send(_ context.Context, msg Message) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		// Detached from the request: the response may already be written.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.next.Send(ctx, msg); err != nil {
			a.logger.Warn("notification delivery failed",
				"channel", msg.Channel,
				"target", msg.Target,
				"error", err,
			)
		}
	}()
	return nil
}

// Wait blocks until in-flight deliveries finish; called on shutdown.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Package notify pushes short operator messages (proposal run summaries) to
// chat channels. Delivery is best-effort: a failed send is logged and never
// fails the operation that triggered it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// sendTimeout bounds one fan-out so a slow channel can not hold up a run.
const sendTimeout = 10 * time.Second

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans a message out to every configured sender.
type Notifier struct {
	senders []Sender
	logger  *slog.Logger
}

// NewNotifier creates a notifier. With no senders, Notify is a no-op.
func NewNotifier(senders []Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{senders: senders, logger: logger.With("component", "notifier")}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers to every sender and returns the joined failures. Callers
// that must not fail should ignore the result; failures are already logged.
func (n *Notifier) Notify(ctx context.Context, title, message string) error {
	if !n.Enabled() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("sender failed", "sender", s.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent", "sender", s.Name())
	}
	return errors.Join(errs...)
}

// Package notify fans resolver events out to chat channels (Telegram,
// Discord). Operators pick which event types they want to hear about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/predictionbot/internal/domain"
)

// Event types.
const (
	EventPredictionWon  = "prediction_won"
	EventPredictionLost = "prediction_lost"
	EventTickFailed     = "tick_failed"
	EventRetention      = "retention_run"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers notifications to every Sender, filtered by event type.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed; empty allows all
	logger  *slog.Logger

	// OnSend is called after each delivery attempt when set.
	OnSend func(sender string, err error)
}

// NewNotifier creates a Notifier. If events is empty every event passes.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether event would be forwarded.
func (n *Notifier) Enabled(event string) bool {
	if len(n.senders) == 0 {
		return false
	}
	return len(n.events) == 0 || n.events[event]
}

// Notify sends title and message to all senders if event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled(event) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyResolved formats and sends a prediction_won / prediction_lost
// notification.
func (n *Notifier) NotifyResolved(ctx context.Context, ev domain.ResolvedEvent) error {
	event := EventPredictionLost
	title := "Prediction lost"
	if ev.Result == domain.ResultWon {
		event = EventPredictionWon
		title = "Prediction won"
	}
	msg := fmt.Sprintf("%s\nMatch %s, final board %d-%d", ev.Label, ev.MatchID, ev.Home, ev.Away)
	return n.Notify(ctx, event, title, msg)
}

// NotifyTickFailed reports a tick that could not list predictions.
func (n *Notifier) NotifyTickFailed(ctx context.Context, err error) error {
	return n.Notify(ctx, EventTickFailed, "Resolver tick failed", err.Error())
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		err := s.Send(ctx, title, message)
		if n.OnSend != nil {
			n.OnSend(s.Name(), err)
		}
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

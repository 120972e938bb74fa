// Package notify delivers refresh failure notifications to logs, the
// message broker and an in-memory inbox.
package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/broker/messages"
	"github.com/chrismessina/delivery-tracker/internal/metrics"
	"github.com/chrismessina/delivery-tracker/internal/services/tracking"
)

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, note tracking.Notification) error {
	n.log.Warn(note.Title, "message", note.Message, "hint", note.Hint)
	metrics.NotificationsTotal.WithLabelValues("log").Inc()
	return nil
}

// BrokerNotifier publishes notifications as messages.RefreshFailed.
type BrokerNotifier struct {
	pub   Publisher
	topic string
}

func NewBrokerNotifier(pub Publisher, topic string) *BrokerNotifier {
	return &BrokerNotifier{pub: pub, topic: topic}
}

func (n *BrokerNotifier) Notify(ctx context.Context, note tracking.Notification) error {
	msg := ToMessage(note)
	if err := n.pub.PublishJSON(ctx, n.topic, msg.ID, msg); err != nil {
		return errors.Wrap(err, "publish notification")
	}
	metrics.NotificationsTotal.WithLabelValues("broker").Inc()
	return nil
}

func ToMessage(note tracking.Notification) messages.RefreshFailed {
	return messages.RefreshFailed{
		ID:      uuid.NewString(),
		Title:   note.Title,
		Message: note.Message,
		Hint:    note.Hint,
		Errors:  note.Errors,
		At:      note.At,
	}
}

// Multi fans out to every notifier and returns the first error.
type Multi []tracking.Notifier

func (m Multi) Notify(ctx context.Context, note tracking.Notification) error {
	var firstErr error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, note); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

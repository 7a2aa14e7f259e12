// Package notify delivers user-facing notifications (success, warning, error)
// raised by the conversation pipeline and the editors.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one toast-style message
type Notification struct {
	Level          Level     `json:"level"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CaseID         string    `json:"case_id,omitempty"`
	Time           time.Time `json:"time"`
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *logger.Logger
}

// NewLogNotifier creates a notifier backed by log
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log.Named("notify")}
}

// Notify logs n at a level matching its severity
func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	fields := []logger.Field{
		logger.String("title", n.Title),
		logger.String("message", n.Message),
	}
	if n.ConversationID != "" {
		fields = append(fields, logger.String("conversation_id", n.ConversationID))
	}
	if n.CaseID != "" {
		fields = append(fields, logger.String("case_id", n.CaseID))
	}

	switch n.Level {
	case LevelError:
		l.logger.Error("Notification", fields...)
	case LevelWarning:
		l.logger.Warn("Notification", fields...)
	default:
		l.logger.Info("Notification", fields...)
	}
	return nil
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// Notify delivers n to every notifier and joins their errors
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Package notify is the user-facing notification surface: transient success
// and error messages with a title and a body. Rendering is left to the
// Notifier implementation.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"alertdesk/internal/logging"
)

// Level is the notification category.
type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is one transient message.
type Notification struct {
	ID    string
	Level Level
	Title string
	Body  string
	Time  time.Time
}

// Success builds a success notification.
func Success(title, body string) Notification {
	return newNotification(LevelSuccess, title, body)
}

// Error builds an error notification.
func Error(title, body string) Notification {
	return newNotification(LevelError, title, body)
}

func newNotification(level Level, title, body string) Notification {
	return Notification{
		ID:    uuid.NewString(),
		Level: level,
		Title: title,
		Body:  body,
		Time:  time.Now(),
	}
}

// Notifier delivers notifications to the user.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// Recorder keeps every notification it receives.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// All returns a copy of the recorded notifications, oldest first.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

// Log writes notifications to the notify log category.
type Log struct{}

func (Log) Notify(_ context.Context, n Notification) error {
	fields := map[string]interface{}{
		"id":    n.ID,
		"level": n.Level.String(),
		"title": n.Title,
	}
	level := "info"
	if n.Level == LevelError {
		level = "warn"
	}
	logging.Get(logging.CategoryNotify).StructuredLog(level, n.Body, fields)
	return nil
}

// Multi fans a notification out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, target := range m {
		if target == nil {
			continue
		}
		if err := target.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		logging.NotifyError("notification %s: %v", n.ID, errors.Join(errs...))
	}
	return errors.Join(errs...)
}

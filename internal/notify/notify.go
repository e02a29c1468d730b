// Package notify delivers registration notices to the operator channel and
// to registrants. Delivery is best effort: callers log failures and never
// undo store changes because of them.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Kind names what happened.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindCanceled   Kind = "canceled"
)

// Notification is one human-readable notice with an optional attachment.
type Notification struct {
	Kind         Kind
	Registration model.Registration
	// Summary is the text shown to people.
	Summary string
	// Attachment is the invoice artifact path, empty when none was produced.
	Attachment string
}

// Sink delivers notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Fanout delivers to every sink and joins their errors.
type Fanout struct {
	sinks  []namedSink
	logger *slog.Logger
}

type namedSink struct {
	name string
	sink Sink
}

// NewFanout returns an empty Fanout.
func NewFanout(logger *slog.Logger) *Fanout {
	return &Fanout{logger: logger}
}

// Add registers a sink under name, used in logs.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	f.sinks = append(f.sinks, namedSink{name: name, sink: s})
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Notify implements Sink. A failing sink does not stop the others.
func (f *Fanout) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.sink.Notify(ctx, n); err != nil {
			f.logger.Warn("notification delivery failed",
				"sink", s.name, "kind", n.Kind, "invoice", n.Registration.InvoiceID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to a structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a sink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		"kind", n.Kind,
		"user_id", n.Registration.UserID,
		"invoice", n.Registration.InvoiceID,
		"event_id", n.Registration.EventID,
		"attendees", n.Registration.Attendees,
		"attachment", n.Attachment,
	)
	return nil
}

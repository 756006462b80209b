// Package events publishes domain events after successful record-store
// writes. Publishing is best effort: a write is never rolled back because an
// event could not be delivered.
package events

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Event types.
const (
	ApplicationSubmitted     = "application.submitted"
	ApplicationStatusChanged = "application.status_changed"
	ApplicationAssigned      = "application.assigned"
	InterviewScheduled       = "application.interview_scheduled"
	AttendanceClocked        = "attendance.clocked"
	AttendanceCorrected      = "attendance.corrected"
)

// Event describes one change to a record.
type Event struct {
	Type       string         `json:"type"`
	Collection string         `json:"collection"`
	RecordID   string         `json:"record_id"`
	At         time.Time      `json:"at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Emit publishes e and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, logger *logrus.Logger, e Event) {
	if p == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"type":      e.Type,
			"record_id": e.RecordID,
		}).Warn("event not published")
	}
}

// Open dials RabbitMQ when url is set and otherwise logs events.
func Open(url, queue string, logger *logrus.Logger) (Publisher, error) {
	if url == "" {
		return LogPublisher{Logger: logger}, nil
	}
	p, err := DialAMQP(url, queue)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct {
	Logger *logrus.Logger
}

func (l LogPublisher) Publish(_ context.Context, e Event) error {
	l.Logger.WithFields(logrus.Fields{
		"type":       e.Type,
		"collection": e.Collection,
		"record_id":  e.RecordID,
	}).Info("event")
	return nil
}

func (LogPublisher) Close() error { return nil }

// Recorder keeps published events in memory. Tests use it to assert on events.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Types returns the types of recorded events in order.
func (r *Recorder) Types() []string {
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}

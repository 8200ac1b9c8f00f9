// Package notify delivers workflow notifications to nominees and admins.
// Delivery is best-effort: failures are logged and audited, never allowed
// to roll back the state change that triggered them.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Event names the notification templates the workflow emits.
type Event string

const (
	EventVerificationStarted Event = "verification_started"
	EventDocumentsRequested  Event = "documents_requested"
	EventRequestApproved     Event = "request_approved"
	EventRequestRejected     Event = "request_rejected"
	EventRequestExpired      Event = "request_expired"
	EventReviewQueued        Event = "review_queued"
)

// Message is one notification to one recipient.
type Message struct {
	Event     Event
	Recipient string
	Fields    map[string]string
}

// Notifier sends a message over whatever channel the deployment wires in.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the structured log. Stands in for a
// mail or SMS gateway in local runs.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	attrs := []any{"event", string(msg.Event), "recipient", msg.Recipient}
	for k, v := range msg.Fields {
		attrs = append(attrs, k, v)
	}
	n.logger.Info("notification dispatched", attrs...)
	return nil
}

// Recorder captures messages for assertions in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

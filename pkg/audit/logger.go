// Package audit emits change notifications for external consumers: the
// indexer that mirrors ledger events into a secondary database, and the
// dashboard/reporting layer. The core publishes; it never waits on a consumer.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a change notification.
type EventType string

const (
	EventActionLogged      EventType = "action_logged"
	EventBatchSealed       EventType = "batch_sealed"
	EventPolicyCreated     EventType = "policy_created"
	EventPolicyUpdated     EventType = "policy_updated"
	EventPolicyAssigned    EventType = "policy_assigned"
	EventPolicyRevoked     EventType = "policy_revoked"
	EventAccessDenied      EventType = "access_denied"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
)

// Event is a structured change notification carrying the full record that
// changed.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	SubjectID string         `json:"subject_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Logger records change notifications.
type Logger interface {
	Record(ctx context.Context, eventType EventType, subjectID string, payload map[string]any) error
}

// logger writes structured JSON lines to a configurable Writer.
type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to the given writer.
// This allows injection for testing and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType EventType, subjectID string, payload map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: l.clock(),
		Payload:   payload,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// Prefix with AUDIT: for easy filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(raw, '\n')...))
	return err
}

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Record(ctx context.Context, eventType EventType, subjectID string, payload map[string]any) error {
	return nil
}

// MultiLogger fans an event out to several sinks. The first failure wins.
type MultiLogger []Logger

func (m MultiLogger) Record(ctx context.Context, eventType EventType, subjectID string, payload map[string]any) error {
	for _, l := range m {
		if err := l.Record(ctx, eventType, subjectID, payload); err != nil {
			return err
		}
	}
	return nil
}

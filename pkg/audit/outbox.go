package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxRecord is one event awaiting dispatch to the indexer.
type OutboxRecord struct {
	ID          string
	Event       Event
	ScheduledAt time.Time
	Status      string // PENDING | DISPATCHED
}

// OutboxStore persists events in an outbox table that the external indexer
// drains. Writing the event and the state change it describes happen in the
// same sequential operation, so the outbox never references a record that was
// rolled back.
type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) (*OutboxStore, error) {
	s := &OutboxStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OutboxStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS event_outbox (
		id TEXT PRIMARY KEY,
		event_json TEXT NOT NULL,
		scheduled_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING'
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record implements Logger by scheduling the event for dispatch.
func (s *OutboxStore) Record(ctx context.Context, eventType EventType, subjectID string, payload map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO event_outbox (id, event_json, scheduled_at, status)
		VALUES (?, ?, ?, 'PENDING')
	`
	if _, err := s.db.ExecContext(ctx, query, event.ID, string(eventJSON), event.Timestamp); err != nil {
		return fmt.Errorf("failed to schedule event: %w", err)
	}
	return nil
}

// GetPending returns events not yet drained, oldest first.
func (s *OutboxStore) GetPending(ctx context.Context) ([]*OutboxRecord, error) {
	query := `
		SELECT id, event_json, scheduled_at, status
		FROM event_outbox
		WHERE status = 'PENDING'
		ORDER BY scheduled_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		var eventJSON string
		if err := rows.Scan(&rec.ID, &eventJSON, &rec.ScheduledAt, &rec.Status); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eventJSON), &rec.Event); err != nil {
			return nil, fmt.Errorf("corrupt outbox event %s: %w", rec.ID, err)
		}
		results = append(results, &rec)
	}
	return results, rows.Err()
}

// MarkDispatched flags an event as drained by the indexer.
func (s *OutboxStore) MarkDispatched(ctx context.Context, id string) error {
	query := `UPDATE event_outbox SET status = 'DISPATCHED' WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("outbox event %s not found", id)
	}
	return nil
}

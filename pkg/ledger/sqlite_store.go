package ledger

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteActionStore persists actions, batches and transitions in SQLite.
type SQLiteActionStore struct {
	db *sql.DB
}

func NewSQLiteActionStore(db *sql.DB) (*SQLiteActionStore, error) {
	s := &SQLiteActionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteActionStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS actions (
		idx INTEGER PRIMARY KEY,
		action_id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL,
		tool_id TEXT NOT NULL,
		data_hash TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		resource_cost INTEGER NOT NULL,
		batch_id INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_actions_agent ON actions (agent_id);
	CREATE INDEX IF NOT EXISTS idx_actions_tool ON actions (tool_id);
	CREATE INDEX IF NOT EXISTS idx_actions_batch ON actions (batch_id);
	CREATE TABLE IF NOT EXISTS batches (
		batch_id INTEGER PRIMARY KEY,
		merkle_root TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		external_data_ref TEXT NOT NULL DEFAULT '',
		action_count INTEGER NOT NULL,
		sealed INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS status_transitions (
		action_index INTEGER NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_action ON status_transitions (action_index);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

const actionColumns = `idx, action_id, agent_id, tool_id, data_hash, timestamp, status, resource_cost, batch_id`

func scanAction(row interface{ Scan(...any) error }) (contracts.Action, error) {
	var a contracts.Action
	err := row.Scan(
		&a.Index, &a.ActionID, &a.AgentID, &a.ToolID, &a.DataHash,
		&a.Timestamp, &a.Status, &a.ResourceCost, &a.BatchID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.Action{}, contracts.ErrNotFound
	}
	if err != nil {
		return contracts.Action{}, err
	}
	return a, nil
}

func (s *SQLiteActionStore) queryActions(ctx context.Context, query string, args ...any) ([]contracts.Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteActionStore) AppendAction(ctx context.Context, a contracts.Action) error {
	query := `
		INSERT INTO actions (` + actionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.Index, a.ActionID, a.AgentID, a.ToolID, a.DataHash,
		a.Timestamp, string(a.Status), a.ResourceCost, a.BatchID,
	)
	return err
}

func (s *SQLiteActionStore) GetAction(ctx context.Context, index int64) (contracts.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE idx = ?`
	return scanAction(s.db.QueryRowContext(ctx, query, index))
}

func (s *SQLiteActionStore) HasActionID(ctx context.Context, actionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM actions WHERE action_id = ?`, actionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteActionStore) NextIndex(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(idx), -1) + 1 FROM actions`).Scan(&next)
	return next, err
}

func (s *SQLiteActionStore) SetStatus(ctx context.Context, index int64, status contracts.ActionStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE actions SET status = ? WHERE idx = ?`, string(status), index)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

func (s *SQLiteActionStore) SetBatchID(ctx context.Context, startIndex, endIndex, batchID int64) error {
	query := `UPDATE actions SET batch_id = ? WHERE idx >= ? AND idx <= ?`
	_, err := s.db.ExecContext(ctx, query, batchID, startIndex, endIndex)
	return err
}

func (s *SQLiteActionStore) PendingActions(ctx context.Context) ([]contracts.Action, error) {
	query := `SELECT ` + actionColumns + ` FROM actions WHERE batch_id = 0 ORDER BY idx ASC`
	return s.queryActions(ctx, query)
}

func (s *SQLiteActionStore) ActionsInRange(ctx context.Context, startIndex, endIndex int64) ([]contracts.Action, error) {
	if startIndex > endIndex {
		return nil, contracts.ErrNotFound
	}
	query := `SELECT ` + actionColumns + ` FROM actions WHERE idx >= ? AND idx <= ? ORDER BY idx ASC`
	out, err := s.queryActions(ctx, query, startIndex, endIndex)
	if err != nil {
		return nil, err
	}
	if int64(len(out)) != endIndex-startIndex+1 {
		return nil, contracts.ErrNotFound
	}
	return out, nil
}

func (s *SQLiteActionStore) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]contracts.Action, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + actionColumns + ` FROM actions WHERE agent_id = ? ORDER BY idx ASC LIMIT ? OFFSET ?`
	return s.queryActions(ctx, query, agentID, limit, offset)
}

func (s *SQLiteActionStore) ListByTool(ctx context.Context, toolID string, limit, offset int) ([]contracts.Action, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + actionColumns + ` FROM actions WHERE tool_id = ? ORDER BY idx ASC LIMIT ? OFFSET ?`
	return s.queryActions(ctx, query, toolID, limit, offset)
}

func (s *SQLiteActionStore) PutBatch(ctx context.Context, b contracts.BatchCommitment) error {
	query := `
		INSERT INTO batches (batch_id, merkle_root, start_index, end_index, timestamp, external_data_ref, action_count, sealed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (batch_id) DO UPDATE SET
			external_data_ref = excluded.external_data_ref
	`
	_, err := s.db.ExecContext(ctx, query,
		b.BatchID, b.MerkleRoot, b.StartIndex, b.EndIndex,
		b.Timestamp, b.ExternalDataRef, b.ActionCount, b.Sealed,
	)
	return err
}

func (s *SQLiteActionStore) GetBatch(ctx context.Context, batchID int64) (contracts.BatchCommitment, error) {
	query := `
		SELECT batch_id, merkle_root, start_index, end_index, timestamp, external_data_ref, action_count, sealed
		FROM batches WHERE batch_id = ?
	`
	var b contracts.BatchCommitment
	err := s.db.QueryRowContext(ctx, query, batchID).Scan(
		&b.BatchID, &b.MerkleRoot, &b.StartIndex, &b.EndIndex,
		&b.Timestamp, &b.ExternalDataRef, &b.ActionCount, &b.Sealed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.BatchCommitment{}, contracts.ErrNotFound
	}
	if err != nil {
		return contracts.BatchCommitment{}, err
	}
	return b, nil
}

func (s *SQLiteActionStore) NextBatchID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(batch_id), 0) + 1 FROM batches`).Scan(&next)
	return next, err
}

func (s *SQLiteActionStore) ListBatches(ctx context.Context) ([]contracts.BatchCommitment, error) {
	query := `
		SELECT batch_id, merkle_root, start_index, end_index, timestamp, external_data_ref, action_count, sealed
		FROM batches ORDER BY batch_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.BatchCommitment
	for rows.Next() {
		var b contracts.BatchCommitment
		if err := rows.Scan(
			&b.BatchID, &b.MerkleRoot, &b.StartIndex, &b.EndIndex,
			&b.Timestamp, &b.ExternalDataRef, &b.ActionCount, &b.Sealed,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteActionStore) AppendTransition(ctx context.Context, t contracts.StatusTransition) error {
	query := `
		INSERT INTO status_transitions (action_index, from_status, to_status, timestamp)
		VALUES (?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, t.ActionIndex, string(t.From), string(t.To), t.Timestamp)
	return err
}

func (s *SQLiteActionStore) Transitions(ctx context.Context, index int64) ([]contracts.StatusTransition, error) {
	query := `
		SELECT action_index, from_status, to_status, timestamp
		FROM status_transitions WHERE action_index = ? ORDER BY timestamp ASC
	`
	rows, err := s.db.QueryContext(ctx, query, index)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.StatusTransition
	for rows.Next() {
		var t contracts.StatusTransition
		if err := rows.Scan(&t.ActionIndex, &t.From, &t.To, &t.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

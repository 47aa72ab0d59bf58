package policy

import (
	"context"
	"database/sql"
	"errors"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists policies and assignments in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS policies (
		policy_id INTEGER PRIMARY KEY,
		daily_limit INTEGER NOT NULL,
		max_resource_cost INTEGER NOT NULL,
		max_risk INTEGER NOT NULL,
		cooldown_seconds INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS policy_assignments (
		subject_kind TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		policy_id INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		assigned_at TIMESTAMP NOT NULL,
		PRIMARY KEY (subject_kind, subject_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) GetPolicy(ctx context.Context, policyID int64) (contracts.Policy, error) {
	query := `
		SELECT policy_id, daily_limit, max_resource_cost, max_risk, cooldown_seconds, active, created_at, updated_at
		FROM policies WHERE policy_id = ?
	`
	var p contracts.Policy
	err := s.db.QueryRowContext(ctx, query, policyID).Scan(
		&p.PolicyID, &p.DailyLimit, &p.MaxResourceCost, &p.MaxRisk,
		&p.CooldownSeconds, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.Policy{}, contracts.ErrNotFound
	}
	if err != nil {
		return contracts.Policy{}, err
	}
	return p, nil
}

func (s *SQLiteStore) PutPolicy(ctx context.Context, p contracts.Policy) error {
	query := `
		INSERT INTO policies (policy_id, daily_limit, max_resource_cost, max_risk, cooldown_seconds, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (policy_id) DO UPDATE SET
			daily_limit = excluded.daily_limit,
			max_resource_cost = excluded.max_resource_cost,
			max_risk = excluded.max_risk,
			cooldown_seconds = excluded.cooldown_seconds,
			active = excluded.active,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.PolicyID, p.DailyLimit, p.MaxResourceCost, p.MaxRisk,
		p.CooldownSeconds, p.Active, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) NextPolicyID(ctx context.Context) (int64, error) {
	// Single sequential writer, so MAX+1 cannot race.
	query := `SELECT COALESCE(MAX(policy_id), ?) + 1 FROM policies`
	var id int64
	if err := s.db.QueryRowContext(ctx, query, contracts.DefaultPolicyID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLiteStore) ListPolicies(ctx context.Context) ([]contracts.Policy, error) {
	query := `
		SELECT policy_id, daily_limit, max_resource_cost, max_risk, cooldown_seconds, active, created_at, updated_at
		FROM policies ORDER BY policy_id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []contracts.Policy
	for rows.Next() {
		var p contracts.Policy
		if err := rows.Scan(
			&p.PolicyID, &p.DailyLimit, &p.MaxResourceCost, &p.MaxRisk,
			&p.CooldownSeconds, &p.Active, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) (contracts.PolicyAssignment, error) {
	query := `
		SELECT subject_kind, subject_id, policy_id, active, assigned_at
		FROM policy_assignments WHERE subject_kind = ? AND subject_id = ?
	`
	var a contracts.PolicyAssignment
	err := s.db.QueryRowContext(ctx, query, string(kind), subjectID).Scan(
		&a.SubjectKind, &a.SubjectID, &a.PolicyID, &a.Active, &a.AssignedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.PolicyAssignment{}, contracts.ErrNotFound
	}
	if err != nil {
		return contracts.PolicyAssignment{}, err
	}
	return a, nil
}

func (s *SQLiteStore) PutAssignment(ctx context.Context, a contracts.PolicyAssignment) error {
	query := `
		INSERT INTO policy_assignments (subject_kind, subject_id, policy_id, active, assigned_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subject_kind, subject_id) DO UPDATE SET
			policy_id = excluded.policy_id,
			active = excluded.active,
			assigned_at = excluded.assigned_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(a.SubjectKind), a.SubjectID, a.PolicyID, a.Active, a.AssignedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteAssignment(ctx context.Context, kind contracts.SubjectKind, subjectID string) error {
	query := `DELETE FROM policy_assignments WHERE subject_kind = ? AND subject_id = ?`
	res, err := s.db.ExecContext(ctx, query, string(kind), subjectID)
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

package postgres

import (
	"context"
	"fmt"
	"time"
)

// AttemptRecord is one audited balancer attempt.
type AttemptRecord struct {
	ID          string    `db:"id"`
	Group       string    `db:"group_name"`
	Endpoint    string    `db:"endpoint"`
	Succeeded   bool      `db:"succeeded"`
	LatencyMs   int64     `db:"latency_ms"`
	ErrorType   string    `db:"error_type"`
	ErrorDetail string    `db:"error_detail"`
	CreatedAt   time.Time `db:"created_at"`
}

// AttemptRepo stores attempt audit records.
type AttemptRepo struct {
	db *DB
}

// NewAttemptRepo creates a new attempt repository.
func NewAttemptRepo(db *DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

// Save inserts an attempt record.
func (r *AttemptRepo) Save(ctx context.Context, rec *AttemptRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO attempts (id, group_name, endpoint, succeeded, latency_ms, error_type, error_detail, created_at)
		VALUES (:id, :group_name, :endpoint, :succeeded, :latency_ms, :error_type, :error_detail, :created_at)`,
		rec)
	if err != nil {
		return fmt.Errorf("failed to save attempt: %w", err)
	}
	return nil
}

// ListRecent returns the latest attempts for a group, newest first.
func (r *AttemptRepo) ListRecent(ctx context.Context, group string, limit int) ([]AttemptRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []AttemptRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, group_name, endpoint, succeeded, latency_ms, error_type, error_detail, created_at
		FROM attempts
		WHERE group_name = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		group, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return records, nil
}

// Prune deletes attempt records older than the retention period and returns
// the number removed.
func (r *AttemptRepo) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM attempts WHERE created_at < $1`,
		time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}
	return res.RowsAffected()
}

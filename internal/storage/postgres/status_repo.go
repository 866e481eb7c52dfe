package postgres

import (
	"context"
	"fmt"
	"time"
)

// StatusRepo stores the latest endpoint status snapshot per group.
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new status repository.
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// Upsert replaces the snapshot for every endpoint in stats.
func (r *StatusRepo) Upsert(ctx context.Context, group string, stats map[string]string) error {
	now := time.Now()
	for endpoint, status := range stats {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO endpoint_status (group_name, endpoint, status, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (group_name, endpoint)
			DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
			group, endpoint, status, now)
		if err != nil {
			return fmt.Errorf("failed to upsert status for %s: %w", endpoint, err)
		}
	}
	return nil
}

// Get returns the stored snapshot for a group.
func (r *StatusRepo) Get(ctx context.Context, group string) (map[string]string, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT endpoint, status FROM endpoint_status WHERE group_name = $1`,
		group)
	if err != nil {
		return nil, fmt.Errorf("failed to get statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var endpoint, status string
		if err := rows.Scan(&endpoint, &status); err != nil {
			return nil, fmt.Errorf("failed to scan status row: %w", err)
		}
		out[endpoint] = status
	}
	return out, rows.Err()
}

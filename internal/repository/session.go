// Package repository persists runtime state that must survive a restart.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/voxgate/voxgate/internal/gateway"
)

// PostgresSessionRepository stores per-shard gateway session state: the
// session id, resume URL, and last sequence each shard reported.
type PostgresSessionRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepository(db *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// RecordSession upserts the state for one shard index.
func (r *PostgresSessionRepository) RecordSession(ctx context.Context, state gateway.SessionState) error {
	const query = `
	INSERT INTO shard_session (shard_index, total_shards, session_id, resume_url, sequence, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (shard_index) DO UPDATE SET
		total_shards = EXCLUDED.total_shards,
		session_id = EXCLUDED.session_id,
		resume_url = EXCLUDED.resume_url,
		sequence = EXCLUDED.sequence,
		updated_at = now()
	`

	_, err := r.db.Exec(ctx, query,
		state.ShardIndex,
		state.TotalShards,
		state.SessionID,
		state.ResumeURL,
		state.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to record shard session: %w", err)
	}
	return nil
}

// LoadSession returns the stored state for a shard index. The second return
// is false when no state has been recorded.
func (r *PostgresSessionRepository) LoadSession(ctx context.Context, shardIndex int) (gateway.SessionState, bool, error) {
	const query = `
	SELECT shard_index, total_shards, session_id, resume_url, sequence
	FROM shard_session
	WHERE shard_index = $1
	`

	var state gateway.SessionState
	err := r.db.QueryRow(ctx, query, shardIndex).Scan(
		&state.ShardIndex,
		&state.TotalShards,
		&state.SessionID,
		&state.ResumeURL,
		&state.Sequence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return gateway.SessionState{}, false, nil
	}
	if err != nil {
		return gateway.SessionState{}, false, fmt.Errorf("failed to load shard session: %w", err)
	}
	return state, true, nil
}

// ListSessions returns all recorded shard sessions ordered by index.
func (r *PostgresSessionRepository) ListSessions(ctx context.Context) ([]gateway.SessionState, error) {
	const query = `
	SELECT shard_index, total_shards, session_id, resume_url, sequence
	FROM shard_session
	ORDER BY shard_index
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list shard sessions: %w", err)
	}
	defer rows.Close()

	var states []gateway.SessionState
	for rows.Next() {
		var state gateway.SessionState
		if err := rows.Scan(
			&state.ShardIndex,
			&state.TotalShards,
			&state.SessionID,
			&state.ResumeURL,
			&state.Sequence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan shard session: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// ClearSessions drops all recorded state. Called when the runtime reshards,
// since old session ids are useless under a new shard count.
func (r *PostgresSessionRepository) ClearSessions(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM shard_session`); err != nil {
		return fmt.Errorf("failed to clear shard sessions: %w", err)
	}
	return nil
}

var _ gateway.SessionRecorder = (*PostgresSessionRepository)(nil)

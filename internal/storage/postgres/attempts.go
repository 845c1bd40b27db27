package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/attempt"
)

const openAttemptIndex = "idx_attempts_open"

const attemptColumns = `id, adventure_id, solver_id, current_node_id, path_taken,
	completed, version, started_at, completed_at`

// CreateAttempt stores a new authenticated attempt. idx_attempts_open
// rejects a second open attempt for the same solver and adventure.
func (c *Client) CreateAttempt(ctx context.Context, s attempt.Session) error {
	path, err := json.Marshal(s.PathTaken)
	if err != nil {
		return fmt.Errorf("failed to marshal path: %w", err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.AdventureID, s.SolverID, s.CurrentNodeID, path,
		s.Completed, s.Version, s.StartedAt, nullTime(s.CompletedAt))
	if isUniqueViolationOf(err, openAttemptIndex) {
		return fmt.Errorf("attempt for %s at %s: %w", s.SolverID, s.AdventureID, attempt.ErrAttemptExists)
	}
	return err
}

func (c *Client) GetAttempt(ctx context.Context, id string) (attempt.Session, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	return scanAttempt(row, "attempt "+id)
}

func (c *Client) FindInProgress(ctx context.Context, solverID, adventureID string) (attempt.Session, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM attempts
		WHERE solver_id = $1 AND adventure_id = $2 AND NOT completed
		ORDER BY started_at DESC
		LIMIT 1
	`, solverID, adventureID)
	return scanAttempt(row, fmt.Sprintf("open attempt for %s at %s", solverID, adventureID))
}

func (c *Client) HasCompleted(ctx context.Context, solverID, adventureID string) (bool, error) {
	var done bool
	err := c.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM attempts WHERE solver_id = $1 AND adventure_id = $2 AND completed)
	`, solverID, adventureID).Scan(&done)
	return done, err
}

// UpdateAttempt writes s only if the stored version is still
// expectedVersion.
func (c *Client) UpdateAttempt(ctx context.Context, s attempt.Session, expectedVersion int) error {
	path, err := json.Marshal(s.PathTaken)
	if err != nil {
		return fmt.Errorf("failed to marshal path: %w", err)
	}
	res, err := c.db.ExecContext(ctx, `
		UPDATE attempts
		SET current_node_id = $3, path_taken = $4, completed = $5, version = $6, completed_at = $7
		WHERE id = $1 AND version = $2
	`, s.ID, expectedVersion, s.CurrentNodeID, path, s.Completed, s.Version, nullTime(s.CompletedAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM attempts WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("attempt %s: %w", s.ID, attempt.ErrNotFound)
	}
	return fmt.Errorf("attempt %s expected version %d: %w", s.ID, expectedVersion, attempt.ErrVersionConflict)
}

func (c *Client) AddLeaderboardEntry(ctx context.Context, e attempt.LeaderboardEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO leaderboard (adventure_id, solver_id, attempt_id, completion_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, e.AdventureID, e.SolverID, e.AttemptID, e.CompletionTime.Milliseconds(), e.CompletedAt)
	return err
}

func (c *Client) Leaderboard(ctx context.Context, adventureID string, limit int) ([]attempt.LeaderboardEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT adventure_id, solver_id, attempt_id, completion_ms, completed_at
		FROM leaderboard
		WHERE adventure_id = $1
		ORDER BY completion_ms ASC, completed_at ASC
		LIMIT $2
	`, adventureID, attempt.LeaderboardLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []attempt.LeaderboardEntry
	for rows.Next() {
		var e attempt.LeaderboardEntry
		var ms int64
		if err := rows.Scan(&e.AdventureID, &e.SolverID, &e.AttemptID, &ms, &e.CompletedAt); err != nil {
			return nil, err
		}
		e.CompletionTime = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanAttempt(row rowScanner, what string) (attempt.Session, error) {
	var (
		s           attempt.Session
		path        []byte
		completedAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.AdventureID, &s.SolverID, &s.CurrentNodeID, &path,
		&s.Completed, &s.Version, &s.StartedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return attempt.Session{}, fmt.Errorf("%s: %w", what, attempt.ErrNotFound)
	}
	if err != nil {
		return attempt.Session{}, err
	}
	if err := json.Unmarshal(path, &s.PathTaken); err != nil {
		return attempt.Session{}, fmt.Errorf("failed to unmarshal path of %s: %w", what, err)
	}
	s.Kind = attempt.KindAuthenticated
	if completedAt.Valid {
		t := completedAt.Time
		s.CompletedAt = &t
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

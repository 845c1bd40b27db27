package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
)

const adventureColumns = `id, name, description, creator_id, access_code, graph_data,
	start_node_id, end_node_id, total_attempts, total_completions, best_completion_ms, created_at`

func (c *Client) CreateAdventure(ctx context.Context, adv adventure.Adventure) error {
	graph, err := json.Marshal(adv.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO adventures (`+adventureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, adv.ID, adv.Name, nullString(adv.Description), adv.CreatorID, adv.AccessCode, graph,
		adv.StartNodeID, adv.EndNodeID, adv.TotalAttempts, adv.TotalCompletions,
		durationMillis(adv.BestCompletion), adv.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("adventure %s or access code %s already exists: %w", adv.ID, adv.AccessCode, err)
	}
	return err
}

func (c *Client) GetAdventure(ctx context.Context, id string) (adventure.Adventure, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+adventureColumns+` FROM adventures WHERE id = $1`, id)
	return scanAdventure(row, "adventure "+id)
}

func (c *Client) GetAdventureByCode(ctx context.Context, code string) (adventure.Adventure, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+adventureColumns+` FROM adventures WHERE access_code = $1`, code)
	return scanAdventure(row, "access code "+code)
}

func (c *Client) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM adventures WHERE access_code = $1)`, code).Scan(&exists)
	return exists, err
}

func (c *Client) IncrementAttempts(ctx context.Context, adventureID string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE adventures SET total_attempts = total_attempts + 1 WHERE id = $1
	`, adventureID)
	return expectRow(res, err, "adventure "+adventureID)
}

// RecordCompletion bumps the completion count on a solver's first finish
// and keeps the best time, in one statement.
func (c *Client) RecordCompletion(ctx context.Context, adventureID string, elapsed time.Duration, first bool) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE adventures
		SET total_completions = total_completions + CASE WHEN $2 THEN 1 ELSE 0 END,
		    best_completion_ms = LEAST(COALESCE(best_completion_ms, $3), $3)
		WHERE id = $1
	`, adventureID, first, elapsed.Milliseconds())
	return expectRow(res, err, "adventure "+adventureID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAdventure(row rowScanner, what string) (adventure.Adventure, error) {
	var (
		adv    adventure.Adventure
		desc   sql.NullString
		graph  []byte
		bestMS sql.NullInt64
	)
	err := row.Scan(&adv.ID, &adv.Name, &desc, &adv.CreatorID, &adv.AccessCode, &graph,
		&adv.StartNodeID, &adv.EndNodeID, &adv.TotalAttempts, &adv.TotalCompletions, &bestMS, &adv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return adventure.Adventure{}, fmt.Errorf("%s: %w", what, attempt.ErrNotFound)
	}
	if err != nil {
		return adventure.Adventure{}, err
	}
	adv.Description = desc.String
	if err := json.Unmarshal(graph, &adv.Graph); err != nil {
		return adventure.Adventure{}, fmt.Errorf("failed to unmarshal graph of %s: %w", what, err)
	}
	if bestMS.Valid {
		best := time.Duration(bestMS.Int64) * time.Millisecond
		adv.BestCompletion = &best
	}
	return adv, nil
}

func durationMillis(d *time.Duration) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: d.Milliseconds(), Valid: true}
}

func expectRow(res sql.Result, err error, what string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, attempt.ErrNotFound)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Service   string                 `json:"service"`
	AttemptID *string                `json:"attempt_id,omitempty"`
}

// Append inserts an event. It satisfies events.Sink.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, attemptID string) error {
	var fieldsJSON interface{}
	if fields != nil {
		b, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		fieldsJSON = b
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO events (ts, level, event, msg, fields, service, attempt_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ts, level, event, nullString(msg), fieldsJSON, c.service, nullString(attemptID))
	return err
}

// QueryEvents returns the newest events, optionally for one attempt.
func (c *Client) QueryEvents(ctx context.Context, attemptID string, limit int) ([]EventRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT event_id, ts, level, event, msg, fields, service, attempt_id
		FROM events
		WHERE ($1 = '' OR attempt_id = $1)
		ORDER BY ts DESC
		LIMIT $2
	`, attemptID, clampLimit(limit, 200, 10000))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, attempt sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Service, &attempt); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if attempt.Valid {
			e.AttemptID = &attempt.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// clampLimit maps non-positive limits to def and caps at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

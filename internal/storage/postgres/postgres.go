package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lib/pq"
)

// Client is the Postgres store for adventures, attempts, the leaderboard
// and the event log.
type Client struct {
	db      *sql.DB
	service string
}

// New connects using the PG* environment variables and creates the schema.
// service tags every event row this process writes.
func New(ctx context.Context, service string) (*Client, error) {
	db, err := sql.Open("postgres", DSNFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db, service: service}
	if err := client.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return client, nil
}

// DSNFromEnv builds a lib/pq connection string from PGHOST, PGPORT, PGUSER,
// PGDATABASE, PGSSLMODE and PGPASSWORD (or PGPASSWORD_FILE).
func DSNFromEnv() string {
	return buildDSN(map[string]string{
		"host":     getEnv("PGHOST", "127.0.0.1"),
		"port":     getEnv("PGPORT", "5432"),
		"user":     getEnv("PGUSER", "adventure"),
		"dbname":   getEnv("PGDATABASE", "adventure"),
		"sslmode":  getEnv("PGSSLMODE", "disable"),
		"password": password(),
	})
}

func password() string {
	if path := os.Getenv("PGPASSWORD_FILE"); path != "" {
		if b, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return os.Getenv("PGPASSWORD")
}

var dsnKeys = []string{"host", "port", "user", "password", "dbname", "sslmode"}

// buildDSN renders key=value pairs in a fixed order, quoting values that
// need it and dropping empty ones.
func buildDSN(params map[string]string) string {
	var parts []string
	for _, k := range dsnKeys {
		v := params[k]
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, ` '\`) {
			v = "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

const schema = `
	CREATE TABLE IF NOT EXISTS adventures (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		description        TEXT,
		creator_id         TEXT NOT NULL,
		access_code        TEXT NOT NULL UNIQUE,
		graph_data         JSONB NOT NULL,
		start_node_id      TEXT NOT NULL,
		end_node_id        TEXT NOT NULL,
		total_attempts     INTEGER NOT NULL DEFAULT 0,
		total_completions  INTEGER NOT NULL DEFAULT 0,
		best_completion_ms BIGINT,
		created_at         TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id              TEXT PRIMARY KEY,
		adventure_id    TEXT NOT NULL REFERENCES adventures(id) ON DELETE CASCADE,
		solver_id       TEXT NOT NULL,
		current_node_id TEXT NOT NULL,
		path_taken      JSONB NOT NULL,
		completed       BOOLEAN NOT NULL DEFAULT FALSE,
		version         INTEGER NOT NULL DEFAULT 0,
		started_at      TIMESTAMPTZ NOT NULL,
		completed_at    TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_solver ON attempts(solver_id, adventure_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_open ON attempts(solver_id, adventure_id) WHERE NOT completed;

	CREATE TABLE IF NOT EXISTS leaderboard (
		entry_id      BIGSERIAL PRIMARY KEY,
		adventure_id  TEXT NOT NULL REFERENCES adventures(id) ON DELETE CASCADE,
		solver_id     TEXT NOT NULL,
		attempt_id    TEXT NOT NULL,
		completion_ms BIGINT NOT NULL,
		completed_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leaderboard_adventure ON leaderboard(adventure_id, completion_ms);

	CREATE TABLE IF NOT EXISTS events (
		event_id   BIGSERIAL PRIMARY KEY,
		ts         TIMESTAMPTZ NOT NULL,
		level      TEXT NOT NULL,
		event      TEXT NOT NULL,
		msg        TEXT,
		fields     JSONB,
		service    TEXT NOT NULL,
		attempt_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
	CREATE INDEX IF NOT EXISTS idx_events_attempt_id ON events(attempt_id);
`

func (c *Client) createSchema(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, schema)
	return err
}

// Ping checks the connection. Used by the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	return isUniqueViolationOf(err, "")
}

// isUniqueViolationOf matches a unique violation on constraint, or on any
// constraint when constraint is empty.
func isUniqueViolationOf(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

package attempt

import (
	"context"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/judge"
)

// AdventureStore persists saved adventures.
type AdventureStore interface {
	CreateAdventure(ctx context.Context, adv adventure.Adventure) error
	GetAdventure(ctx context.Context, id string) (adventure.Adventure, error)
	GetAdventureByCode(ctx context.Context, code string) (adventure.Adventure, error)
	AccessCodeExists(ctx context.Context, code string) (bool, error)
	IncrementAttempts(ctx context.Context, adventureID string) error
	RecordCompletion(ctx context.Context, adventureID string, elapsed time.Duration, first bool) error
}

// Store persists authenticated attempts. CreateAttempt must fail with
// ErrAttemptExists while the solver has another open attempt at the same
// adventure. UpdateAttempt must fail with ErrVersionConflict unless the
// stored version equals expectedVersion.
type Store interface {
	CreateAttempt(ctx context.Context, s Session) error
	GetAttempt(ctx context.Context, id string) (Session, error)
	FindInProgress(ctx context.Context, solverID, adventureID string) (Session, error)
	HasCompleted(ctx context.Context, solverID, adventureID string) (bool, error)
	UpdateAttempt(ctx context.Context, s Session, expectedVersion int) error
	AddLeaderboardEntry(ctx context.Context, e LeaderboardEntry) error
	Leaderboard(ctx context.Context, adventureID string, limit int) ([]LeaderboardEntry, error)
}

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardLimit maps non-positive limits to the default and caps the
// rest, so every store returns the same number of rows.
func LeaderboardLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// LeaderboardEntry records one finished attempt.
type LeaderboardEntry struct {
	AdventureID    string        `json:"adventure_id"`
	SolverID       string        `json:"solver_id"`
	AttemptID      string        `json:"attempt_id"`
	CompletionTime time.Duration `json:"completion_time"`
	CompletedAt    time.Time     `json:"completed_at"`
}

// Judge runs a submission against a problem.
type Judge interface {
	Judge(ctx context.Context, p adventure.Problem, code string) (judge.Verdict, error)
}

// Publisher announces new session snapshots.
type Publisher interface {
	PublishProgress(ctx context.Context, s Session, step adventure.Step) error
}

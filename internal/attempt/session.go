package attempt

import (
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

// Kind distinguishes persisted attempts from client-held guest attempts.
type Kind string

const (
	KindGuest         Kind = "guest"
	KindAuthenticated Kind = "authenticated"
)

// Status is derived from the completed flag.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// PathEntry is one submission in an attempt's history.
type PathEntry struct {
	NodeID    string            `json:"node_id"`
	Outcome   adventure.Outcome `json:"outcome"`
	Code      string            `json:"code"`
	Timestamp time.Time         `json:"timestamp"`
}

// Session is a snapshot of a solver's walk through one adventure.
type Session struct {
	ID            string      `json:"id"`
	AdventureID   string      `json:"adventure_id"`
	Kind          Kind        `json:"kind"`
	SolverID      string      `json:"solver_id,omitempty"`
	CurrentNodeID string      `json:"current_node_id"`
	PathTaken     []PathEntry `json:"path_taken"`
	Completed     bool        `json:"completed"`
	Version       int         `json:"version"`
	StartedAt     time.Time   `json:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// Status returns the attempt's state machine position.
func (s Session) Status() Status {
	if s.Completed {
		return StatusCompleted
	}
	return StatusInProgress
}

// Snapshot returns a deep copy of the session.
func (s Session) Snapshot() Session {
	out := s
	out.PathTaken = make([]PathEntry, len(s.PathTaken))
	copy(out.PathTaken, s.PathTaken)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// LastCode returns the most recent code submitted at nodeID.
func (s Session) LastCode(nodeID string) (string, bool) {
	for i := len(s.PathTaken) - 1; i >= 0; i-- {
		e := s.PathTaken[i]
		if e.NodeID == nodeID && e.Outcome != adventure.OutcomeStarted {
			return e.Code, true
		}
	}
	return "", false
}

// Elapsed returns the time from start to completion, or zero while the
// attempt is still in progress.
func (s Session) Elapsed() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

package attempt

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
)

// Coordinator applies judged submissions to attempt sessions. It holds no
// state of its own; every call returns a fresh snapshot.
type Coordinator struct {
	now   func() time.Time
	newID func() string
}

// NewCoordinator returns a coordinator using the wall clock and random ids.
func NewCoordinator() *Coordinator {
	return &Coordinator{now: time.Now, newID: uuid.NewString}
}

// SetClock replaces the coordinator's time source. Used by tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// SetIDFunc replaces the id generator for authenticated attempts.
func (c *Coordinator) SetIDFunc(fn func() string) {
	c.newID = fn
}

// Start positions a new session at the adventure's start node. The path is
// seeded with a started entry for that node.
func (c *Coordinator) Start(adv adventure.Adventure, kind Kind, solverID string) (Session, error) {
	start, err := startNode(adv)
	if err != nil {
		return Session{}, err
	}

	now := c.now().UTC()
	s := Session{
		AdventureID:   adv.ID,
		Kind:          kind,
		CurrentNodeID: start,
		PathTaken: []PathEntry{{
			NodeID:    start,
			Outcome:   adventure.OutcomeStarted,
			Timestamp: now,
		}},
		StartedAt: now,
	}

	switch kind {
	case KindGuest:
		s.ID = fmt.Sprintf("guest-%s-%d", adv.ID, now.UnixMilli())
	case KindAuthenticated:
		if solverID == "" {
			return Session{}, fmt.Errorf("authenticated attempt needs a solver: %w", ErrWrongKind)
		}
		s.ID = c.newID()
		s.SolverID = solverID
	default:
		return Session{}, fmt.Errorf("%w: %q", ErrWrongKind, kind)
	}
	return s, nil
}

// Submit records a judged submission at nodeID and advances the session.
// The input session is never modified. A held step still appends to the
// path and bumps the version.
func (c *Coordinator) Submit(g adventure.Graph, s Session, nodeID string, outcome adventure.Outcome, code string) (Session, adventure.Step, error) {
	if err := checkSubmittable(s, nodeID); err != nil {
		return s, adventure.Step{}, err
	}

	step, err := adventure.Advance(g, s.CurrentNodeID, outcome)
	if err != nil {
		return s, adventure.Step{}, fmt.Errorf("attempt %s: %w", s.ID, err)
	}

	now := c.now().UTC()
	next := s.Snapshot()
	next.PathTaken = append(next.PathTaken, PathEntry{
		NodeID:    nodeID,
		Outcome:   outcome,
		Code:      code,
		Timestamp: now,
	})
	next.CurrentNodeID = step.NextNodeID
	next.Version++
	if step.Completed && !next.Completed {
		next.Completed = true
		next.CompletedAt = &now
	}
	return next, step, nil
}

// Replay checks that a client-held session is a walk the adventure could
// have produced: a started entry at the start node, then one judged entry
// per step, ending where the session claims to be.
func (c *Coordinator) Replay(adv adventure.Adventure, s Session) error {
	if s.AdventureID != adv.ID {
		return fmt.Errorf("attempt %s is for adventure %s: %w", s.ID, s.AdventureID, ErrInvalidSession)
	}
	if len(s.PathTaken) == 0 {
		return fmt.Errorf("attempt %s has no path: %w", s.ID, ErrInvalidSession)
	}
	start, err := startNode(adv)
	if err != nil {
		return err
	}
	first := s.PathTaken[0]
	if first.Outcome != adventure.OutcomeStarted || first.NodeID != start {
		return fmt.Errorf("attempt %s does not start at %s: %w", s.ID, start, ErrInvalidSession)
	}

	current, completed := first.NodeID, false
	for i, e := range s.PathTaken[1:] {
		if completed || e.NodeID != current {
			return fmt.Errorf("attempt %s path entry %d at %s is out of sequence: %w", s.ID, i+1, e.NodeID, ErrInvalidSession)
		}
		step, err := adventure.Advance(adv.Graph, current, e.Outcome)
		if err != nil {
			return fmt.Errorf("attempt %s path entry %d: %v: %w", s.ID, i+1, err, ErrInvalidSession)
		}
		current, completed = step.NextNodeID, step.Completed
	}
	if current != s.CurrentNodeID || completed != s.Completed {
		return fmt.Errorf("attempt %s claims %s but its path ends at %s: %w", s.ID, s.CurrentNodeID, current, ErrInvalidSession)
	}
	return nil
}

func startNode(adv adventure.Adventure) (string, error) {
	if adv.StartNodeID != "" {
		return adv.StartNodeID, nil
	}
	start, _, ok := adventure.NewIndex(adv.Graph).Endpoints()
	if !ok {
		return "", fmt.Errorf("adventure %s has no unique start node: %w", adv.ID, adventure.ErrUnknownNode)
	}
	return start, nil
}

func checkSubmittable(s Session, nodeID string) error {
	if s.Completed {
		return fmt.Errorf("attempt %s: %w", s.ID, ErrAttemptCompleted)
	}
	if nodeID != s.CurrentNodeID {
		return &OutcomeMismatchError{
			AttemptID:     s.ID,
			NodeID:        nodeID,
			CurrentNodeID: s.CurrentNodeID,
		}
	}
	return nil
}

package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/events"
	"github.com/AaronLay10/AdventureEngine/internal/judge"
)

const maxAccessCodeTries = 10

// Recorder receives submission measurements.
type Recorder interface {
	ObserveSubmission(kind Kind, outcome adventure.Outcome, step adventure.Step)
	ObserveJudge(elapsed time.Duration, err error)
	ObserveViolation(kind adventure.ViolationKind)
}

// Result is what a submission produced.
type Result struct {
	Session Session        `json:"attempt"`
	Step    adventure.Step `json:"step"`
	Verdict judge.Verdict  `json:"verdict"`
}

// Service runs the judge, the coordinator and persistence for one
// submission at a time. It holds no locks; concurrent submissions to one
// authenticated attempt are resolved by the store's version check.
type Service struct {
	adventures AdventureStore
	attempts   Store
	judge      Judge
	coord      *Coordinator
	policy     adventure.Policy
	publisher  Publisher
	recorder   Recorder
	now        func() time.Time
}

// NewService wires a service with the strict validation policy.
func NewService(adventures AdventureStore, attempts Store, j Judge) *Service {
	return &Service{
		adventures: adventures,
		attempts:   attempts,
		judge:      j,
		coord:      NewCoordinator(),
		policy:     adventure.StrictPolicy,
		now:        time.Now,
	}
}

// SetPolicy sets the validation policy used when saving adventures.
func (s *Service) SetPolicy(p adventure.Policy) { s.policy = p }

// SetPublisher sets where new snapshots are announced.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// SetRecorder sets the metrics recorder.
func (s *Service) SetRecorder(r Recorder) { s.recorder = r }

// SetCoordinator replaces the coordinator. Used by tests.
func (s *Service) SetCoordinator(c *Coordinator) { s.coord = c }

// Policy returns the validation policy in effect.
func (s *Service) Policy() adventure.Policy { return s.policy }

// Validate checks a graph without saving it.
func (s *Service) Validate(g adventure.Graph) *adventure.Violation {
	v := adventure.Validate(g, s.policy)
	if v != nil {
		s.violation(v)
		return v
	}
	events.Emit("info", "adventure.validated", "", map[string]interface{}{
		"nodes": len(g.Nodes),
		"edges": len(g.Edges),
	})
	return nil
}

// SaveAdventure validates and stores a draft under a fresh access code.
// A structural violation is returned as a *adventure.Violation.
func (s *Service) SaveAdventure(ctx context.Context, d adventure.Draft) (adventure.Adventure, error) {
	adv, v := d.Build(s.policy, s.now())
	if v != nil {
		s.violation(v)
		return adventure.Adventure{}, v
	}

	code, err := s.uniqueAccessCode(ctx)
	if err != nil {
		return adventure.Adventure{}, err
	}
	adv.ID = uuid.NewString()
	adv.AccessCode = code

	if err := s.adventures.CreateAdventure(ctx, adv); err != nil {
		return adventure.Adventure{}, fmt.Errorf("failed to save adventure: %w", err)
	}

	events.Emit("info", "adventure.saved", "", map[string]interface{}{
		"adventure_id": adv.ID,
		"access_code":  adv.AccessCode,
		"creator_id":   adv.CreatorID,
	})
	return adv, nil
}

func (s *Service) uniqueAccessCode(ctx context.Context) (string, error) {
	for i := 0; i < maxAccessCodeTries; i++ {
		code := adventure.NewAccessCode()
		exists, err := s.adventures.AccessCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check access code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free access code after %d tries", maxAccessCodeTries)
}

// AdventureByCode fetches a saved adventure by its share code.
func (s *Service) AdventureByCode(ctx context.Context, code string) (adventure.Adventure, error) {
	return s.adventures.GetAdventureByCode(ctx, code)
}

// Leaderboard returns the fastest completions of an adventure.
func (s *Service) Leaderboard(ctx context.Context, adventureID string, limit int) ([]LeaderboardEntry, error) {
	if _, err := s.adventures.GetAdventure(ctx, adventureID); err != nil {
		return nil, err
	}
	return s.attempts.Leaderboard(ctx, adventureID, limit)
}

// Attempt returns a stored attempt owned by solverID.
func (s *Service) Attempt(ctx context.Context, id, solverID string) (Session, error) {
	sess, err := s.attempts.GetAttempt(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.SolverID != solverID {
		return Session{}, fmt.Errorf("attempt %s: %w", id, ErrNotFound)
	}
	return sess, nil
}

// GetOrStart returns the solver's in-progress attempt at the adventure, or
// starts one. Starting counts toward the adventure's attempts only if the
// solver has never completed it.
func (s *Service) GetOrStart(ctx context.Context, adventureID, solverID string) (Session, error) {
	existing, err := s.attempts.FindInProgress(ctx, solverID, adventureID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Session{}, fmt.Errorf("failed to look up attempt: %w", err)
	}

	adv, err := s.adventures.GetAdventure(ctx, adventureID)
	if err != nil {
		return Session{}, err
	}
	completed, err := s.attempts.HasCompleted(ctx, solverID, adventureID)
	if err != nil {
		return Session{}, fmt.Errorf("failed to check completions: %w", err)
	}

	sess, err := s.coord.Start(adv, KindAuthenticated, solverID)
	if err != nil {
		return Session{}, err
	}
	if err := s.attempts.CreateAttempt(ctx, sess); err != nil {
		if errors.Is(err, ErrAttemptExists) {
			// A concurrent request opened it first and already counted it.
			return s.attempts.FindInProgress(ctx, solverID, adventureID)
		}
		return Session{}, fmt.Errorf("failed to create attempt: %w", err)
	}
	if !completed {
		if err := s.adventures.IncrementAttempts(ctx, adventureID); err != nil {
			return Session{}, fmt.Errorf("failed to count attempt: %w", err)
		}
	}

	s.started(ctx, sess)
	return sess, nil
}

// StartGuest returns a new guest session. Nothing is stored.
func (s *Service) StartGuest(ctx context.Context, adventureID string) (Session, error) {
	adv, err := s.adventures.GetAdventure(ctx, adventureID)
	if err != nil {
		return Session{}, err
	}
	sess, err := s.coord.Start(adv, KindGuest, "")
	if err != nil {
		return Session{}, err
	}
	s.started(ctx, sess)
	return sess, nil
}

// Submit judges code at nodeID for a stored attempt and persists the new
// snapshot. A concurrent write to the same attempt yields ErrVersionConflict.
func (s *Service) Submit(ctx context.Context, attemptID, solverID, nodeID, code string) (Result, error) {
	sess, err := s.Attempt(ctx, attemptID, solverID)
	if err != nil {
		return Result{}, err
	}
	if sess.Kind != KindAuthenticated {
		return Result{}, fmt.Errorf("attempt %s: %w", attemptID, ErrWrongKind)
	}

	adv, err := s.adventures.GetAdventure(ctx, sess.AdventureID)
	if err != nil {
		return Result{}, err
	}

	res, err := s.judgeAndAdvance(ctx, adv, sess, nodeID, code)
	if err != nil {
		return Result{}, err
	}

	var first bool
	if res.Step.Completed {
		done, err := s.attempts.HasCompleted(ctx, solverID, adv.ID)
		if err != nil {
			return Result{}, fmt.Errorf("failed to check completions: %w", err)
		}
		first = !done
	}

	if err := s.attempts.UpdateAttempt(ctx, res.Session, sess.Version); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.stale(sess, nodeID, err)
		}
		return Result{}, fmt.Errorf("failed to save attempt: %w", err)
	}

	if res.Step.Completed {
		s.recordCompletion(ctx, adv.ID, res.Session, first)
	}

	s.advanced(ctx, res)
	return res, nil
}

// recordCompletion updates the adventure's stats and leaderboard after the
// completed snapshot is committed. The attempt is already retired by then,
// so a failure here is reported and never returned to the solver.
func (s *Service) recordCompletion(ctx context.Context, adventureID string, sess Session, first bool) {
	elapsed := sess.Elapsed()
	if err := s.adventures.RecordCompletion(ctx, adventureID, elapsed, first); err != nil {
		s.bookkeepingFailed(sess, "failed to record completion", err)
	}
	entry := LeaderboardEntry{
		AdventureID:    adventureID,
		SolverID:       sess.SolverID,
		AttemptID:      sess.ID,
		CompletionTime: elapsed,
		CompletedAt:    *sess.CompletedAt,
	}
	if err := s.attempts.AddLeaderboardEntry(ctx, entry); err != nil {
		s.bookkeepingFailed(sess, "failed to record leaderboard entry", err)
	}
}

func (s *Service) bookkeepingFailed(sess Session, msg string, err error) {
	events.Emit("error", "system.error", msg, map[string]interface{}{
		"attempt_id":   sess.ID,
		"adventure_id": sess.AdventureID,
		"solver_id":    sess.SolverID,
		"error":        err.Error(),
	})
}

// SubmitGuest judges code at nodeID for a client-held guest session and
// returns the next snapshot for the client to keep. The session's path is
// replayed against the graph first; one that does not lead to its claimed
// position is rejected with ErrInvalidSession.
func (s *Service) SubmitGuest(ctx context.Context, sess Session, nodeID, code string) (Result, error) {
	if sess.Kind != KindGuest {
		return Result{}, fmt.Errorf("attempt %s: %w", sess.ID, ErrWrongKind)
	}
	adv, err := s.adventures.GetAdventure(ctx, sess.AdventureID)
	if err != nil {
		return Result{}, err
	}
	if err := s.coord.Replay(adv, sess); err != nil {
		events.Emit("warn", "attempt.rejected", err.Error(), map[string]interface{}{
			"attempt_id":   sess.ID,
			"adventure_id": sess.AdventureID,
			"kind":         string(sess.Kind),
		})
		return Result{}, err
	}
	res, err := s.judgeAndAdvance(ctx, adv, sess, nodeID, code)
	if err != nil {
		return Result{}, err
	}
	s.advanced(ctx, res)
	return res, nil
}

// judgeAndAdvance rejects retired and stale submissions before spending a
// judge call on them.
func (s *Service) judgeAndAdvance(ctx context.Context, adv adventure.Adventure, sess Session, nodeID, code string) (Result, error) {
	if err := checkSubmittable(sess, nodeID); err != nil {
		if errors.Is(err, ErrOutcomeMismatch) {
			s.stale(sess, nodeID, err)
		}
		return Result{}, err
	}

	node, ok := adv.Graph.Node(nodeID)
	if !ok {
		return Result{}, fmt.Errorf("node %s: %w", nodeID, adventure.ErrUnknownNode)
	}

	start := time.Now()
	verdict, err := s.judge.Judge(ctx, node.Data, code)
	if s.recorder != nil {
		s.recorder.ObserveJudge(time.Since(start), err)
	}
	if err != nil {
		events.Emit("error", "judge.failed", err.Error(), map[string]interface{}{
			"attempt_id": sess.ID,
			"node_id":    nodeID,
			"language":   node.Data.Language,
		})
		return Result{}, fmt.Errorf("failed to judge submission: %w", err)
	}

	outcome := adventure.OutcomeOf(verdict.IsCorrect)
	next, step, err := s.coord.Submit(adv.Graph, sess, nodeID, outcome, code)
	if err != nil {
		return Result{}, err
	}
	if s.recorder != nil {
		s.recorder.ObserveSubmission(sess.Kind, outcome, step)
	}

	events.Emit("info", "attempt.submitted", "", map[string]interface{}{
		"attempt_id": sess.ID,
		"kind":       string(sess.Kind),
		"node_id":    nodeID,
		"outcome":    string(outcome),
	})
	return Result{Session: next, Step: step, Verdict: verdict}, nil
}

func (s *Service) started(ctx context.Context, sess Session) {
	events.Emit("info", "attempt.started", "", map[string]interface{}{
		"attempt_id":   sess.ID,
		"adventure_id": sess.AdventureID,
		"kind":         string(sess.Kind),
		"node_id":      sess.CurrentNodeID,
	})
	s.publish(ctx, sess, adventure.Step{NextNodeID: sess.CurrentNodeID})
}

func (s *Service) advanced(ctx context.Context, res Result) {
	fields := map[string]interface{}{
		"attempt_id": res.Session.ID,
		"kind":       string(res.Session.Kind),
		"node_id":    res.Step.NextNodeID,
	}
	switch {
	case res.Step.Completed:
		fields["elapsed_ms"] = res.Session.Elapsed().Milliseconds()
		events.Emit("info", "attempt.completed", "", fields)
	case res.Step.Held:
		events.Emit("warn", "attempt.held", "no edge for outcome, holding position", fields)
	default:
		fields["edge_id"] = res.Step.EdgeID
		events.Emit("info", "attempt.advanced", "", fields)
	}
	s.publish(ctx, res.Session, res.Step)
}

func (s *Service) publish(ctx context.Context, sess Session, step adventure.Step) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProgress(ctx, sess, step); err != nil {
		events.Emit("error", "system.error", "progress publish failed", map[string]interface{}{
			"attempt_id": sess.ID,
			"error":      err.Error(),
		})
	}
}

func (s *Service) stale(sess Session, nodeID string, err error) {
	events.Emit("warn", "attempt.stale", err.Error(), map[string]interface{}{
		"attempt_id":      sess.ID,
		"node_id":         nodeID,
		"current_node_id": sess.CurrentNodeID,
	})
}

func (s *Service) violation(v *adventure.Violation) {
	if s.recorder != nil {
		s.recorder.ObserveViolation(v.Kind)
	}
	events.Emit("info", "adventure.rejected", v.Message, map[string]interface{}{
		"kind":     string(v.Kind),
		"node_ids": v.NodeIDs,
		"edge_ids": v.EdgeIDs,
	})
}

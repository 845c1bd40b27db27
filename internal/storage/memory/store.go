// Package memory is an in-process store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
)

// Store implements attempt.Store and attempt.AdventureStore.
type Store struct {
	mu          sync.RWMutex
	adventures  map[string]adventure.Adventure
	codes       map[string]string
	attempts    map[string]attempt.Session
	leaderboard []attempt.LeaderboardEntry
}

func New() *Store {
	return &Store{
		adventures: make(map[string]adventure.Adventure),
		codes:      make(map[string]string),
		attempts:   make(map[string]attempt.Session),
	}
}

func (s *Store) CreateAdventure(ctx context.Context, adv adventure.Adventure) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.adventures[adv.ID]; ok {
		return fmt.Errorf("adventure %s already exists", adv.ID)
	}
	if _, ok := s.codes[adv.AccessCode]; ok {
		return fmt.Errorf("access code %s already in use", adv.AccessCode)
	}
	adv.Graph = adv.Graph.Clone()
	s.adventures[adv.ID] = adv
	s.codes[adv.AccessCode] = adv.ID
	return nil
}

func (s *Store) GetAdventure(ctx context.Context, id string) (adventure.Adventure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adv, ok := s.adventures[id]
	if !ok {
		return adventure.Adventure{}, fmt.Errorf("adventure %s: %w", id, attempt.ErrNotFound)
	}
	return copyAdventure(adv), nil
}

func (s *Store) GetAdventureByCode(ctx context.Context, code string) (adventure.Adventure, error) {
	s.mu.RLock()
	id, ok := s.codes[code]
	s.mu.RUnlock()
	if !ok {
		return adventure.Adventure{}, fmt.Errorf("access code %s: %w", code, attempt.ErrNotFound)
	}
	return s.GetAdventure(ctx, id)
}

func (s *Store) AccessCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *Store) IncrementAttempts(ctx context.Context, adventureID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	adv, ok := s.adventures[adventureID]
	if !ok {
		return fmt.Errorf("adventure %s: %w", adventureID, attempt.ErrNotFound)
	}
	adv.TotalAttempts++
	s.adventures[adventureID] = adv
	return nil
}

func (s *Store) RecordCompletion(ctx context.Context, adventureID string, elapsed time.Duration, first bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	adv, ok := s.adventures[adventureID]
	if !ok {
		return fmt.Errorf("adventure %s: %w", adventureID, attempt.ErrNotFound)
	}
	adv.RecordCompletion(elapsed, first)
	s.adventures[adventureID] = adv
	return nil
}

func (s *Store) CreateAttempt(ctx context.Context, sess attempt.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attempts[sess.ID]; ok {
		return fmt.Errorf("attempt %s already exists", sess.ID)
	}
	if !sess.Completed {
		for _, other := range s.attempts {
			if other.SolverID == sess.SolverID && other.AdventureID == sess.AdventureID && !other.Completed {
				return fmt.Errorf("attempt %s for %s at %s: %w", other.ID, sess.SolverID, sess.AdventureID, attempt.ErrAttemptExists)
			}
		}
	}
	s.attempts[sess.ID] = sess.Snapshot()
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, id string) (attempt.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.attempts[id]
	if !ok {
		return attempt.Session{}, fmt.Errorf("attempt %s: %w", id, attempt.ErrNotFound)
	}
	return sess.Snapshot(), nil
}

// FindInProgress returns the most recently started open attempt.
func (s *Store) FindInProgress(ctx context.Context, solverID, adventureID string) (attempt.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []attempt.Session
	for _, sess := range s.attempts {
		if sess.SolverID == solverID && sess.AdventureID == adventureID && !sess.Completed {
			found = append(found, sess)
		}
	}
	if len(found) == 0 {
		return attempt.Session{}, fmt.Errorf("open attempt for %s at %s: %w", solverID, adventureID, attempt.ErrNotFound)
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].StartedAt.After(found[j].StartedAt)
	})
	return found[0].Snapshot(), nil
}

func (s *Store) HasCompleted(ctx context.Context, solverID, adventureID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.attempts {
		if sess.SolverID == solverID && sess.AdventureID == adventureID && sess.Completed {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) UpdateAttempt(ctx context.Context, sess attempt.Session, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.attempts[sess.ID]
	if !ok {
		return fmt.Errorf("attempt %s: %w", sess.ID, attempt.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("attempt %s at version %d, expected %d: %w", sess.ID, cur.Version, expectedVersion, attempt.ErrVersionConflict)
	}
	s.attempts[sess.ID] = sess.Snapshot()
	return nil
}

func (s *Store) AddLeaderboardEntry(ctx context.Context, e attempt.LeaderboardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboard = append(s.leaderboard, e)
	return nil
}

// Leaderboard returns the fastest completions of an adventure, best first.
func (s *Store) Leaderboard(ctx context.Context, adventureID string, limit int) ([]attempt.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attempt.LeaderboardEntry
	for _, e := range s.leaderboard {
		if e.AdventureID == adventureID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompletionTime != out[j].CompletionTime {
			return out[i].CompletionTime < out[j].CompletionTime
		}
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	if limit = attempt.LeaderboardLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func copyAdventure(adv adventure.Adventure) adventure.Adventure {
	adv.Graph = adv.Graph.Clone()
	if adv.BestCompletion != nil {
		best := *adv.BestCompletion
		adv.BestCompletion = &best
	}
	return adv
}

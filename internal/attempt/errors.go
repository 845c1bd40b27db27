package attempt

import (
	"errors"
	"fmt"
)

var (
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrAttemptExists    = errors.New("solver already has an open attempt")
	ErrInvalidSession   = errors.New("session is not a walk of its adventure")
	ErrOutcomeMismatch  = errors.New("submission does not target the current node")
	ErrNotFound         = errors.New("not found")
	ErrVersionConflict  = errors.New("attempt was modified concurrently")
	ErrWrongKind        = errors.New("wrong attempt kind")
)

// OutcomeMismatchError reports a stale submission. CurrentNodeID lets the
// client refetch its position instead of retrying.
type OutcomeMismatchError struct {
	AttemptID     string
	NodeID        string
	CurrentNodeID string
}

func (e *OutcomeMismatchError) Error() string {
	return fmt.Sprintf("attempt %s: submitted to %s but current node is %s", e.AttemptID, e.NodeID, e.CurrentNodeID)
}

func (e *OutcomeMismatchError) Unwrap() error {
	return ErrOutcomeMismatch
}

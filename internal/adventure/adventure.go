package adventure

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccessCodeLength is the number of hex characters in a share code.
const AccessCodeLength = 6

// NewAccessCode returns a short lowercase hex code for sharing an
// adventure. Codes are not guaranteed unique; callers retry on collision.
func NewAccessCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:AccessCodeLength]
}

// Adventure is a saved, validated graph plus its catalogue metadata.
type Adventure struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	CreatorID        string         `json:"creator_id"`
	AccessCode       string         `json:"access_code"`
	Graph            Graph          `json:"graph_data"`
	StartNodeID      string         `json:"start_node_id"`
	EndNodeID        string         `json:"end_node_id"`
	TotalAttempts    int            `json:"total_attempts"`
	TotalCompletions int            `json:"total_completions"`
	BestCompletion   *time.Duration `json:"best_completion_time,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// Draft is an unsaved adventure as submitted by its author.
type Draft struct {
	Name        string
	Description string
	CreatorID   string
	Graph       Graph
}

// Build validates the draft under p and returns the adventure record with
// its start and end nodes resolved. ID and AccessCode are left for the
// store to fill.
func (d Draft) Build(p Policy, now time.Time) (Adventure, *Violation) {
	if v := Validate(d.Graph, p); v != nil {
		return Adventure{}, v
	}
	start, end, _ := NewIndex(d.Graph).Endpoints()
	g := d.Graph.Clone()
	for i := range g.Edges {
		g.Edges[i].Data.Condition = g.Edges[i].Condition()
	}
	return Adventure{
		Name:        d.Name,
		Description: d.Description,
		CreatorID:   d.CreatorID,
		Graph:       g,
		StartNodeID: start,
		EndNodeID:   end,
		CreatedAt:   now.UTC(),
	}, nil
}

// RecordCompletion folds one finished attempt into the adventure's
// statistics. firstCompletion reports whether the solver had never finished
// this adventure before.
func (a *Adventure) RecordCompletion(elapsed time.Duration, firstCompletion bool) {
	if firstCompletion {
		a.TotalCompletions++
	}
	if a.BestCompletion == nil || elapsed < *a.BestCompletion {
		best := elapsed
		a.BestCompletion = &best
	}
}

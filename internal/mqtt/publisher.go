package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
)

// Broker is the subset of Client the publisher needs.
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// ProgressMessage is the JSON body published for every new attempt snapshot.
type ProgressMessage struct {
	Attempt   attempt.Session `json:"attempt"`
	Status    attempt.Status  `json:"status"`
	EdgeID    string          `json:"edge_id,omitempty"`
	Held      bool            `json:"held"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProgressPublisher announces attempt progress on
// <prefix>/<adventure_id>/attempts/<attempt_id>. A nil broker makes every
// publish a no-op.
type ProgressPublisher struct {
	broker Broker
	prefix string
	now    func() time.Time
}

func NewProgressPublisher(b Broker, prefix string) *ProgressPublisher {
	return &ProgressPublisher{
		broker: b,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// Topic returns the topic an attempt's progress is published on.
func (p *ProgressPublisher) Topic(adventureID, attemptID string) string {
	return fmt.Sprintf("%s/%s/attempts/%s", p.prefix, adventureID, attemptID)
}

func (p *ProgressPublisher) PublishProgress(ctx context.Context, s attempt.Session, step adventure.Step) error {
	if p == nil || p.broker == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.broker.IsConnected() {
		return fmt.Errorf("mqtt not connected, dropping progress for %s", s.ID)
	}

	payload, err := json.Marshal(ProgressMessage{
		Attempt:   s,
		Status:    s.Status(),
		EdgeID:    step.EdgeID,
		Held:      step.Held,
		Timestamp: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	return p.broker.Publish(p.Topic(s.AdventureID, s.ID), 1, false, payload)
}

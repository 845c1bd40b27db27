package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

var buffer = NewRingBuffer(256)

// Sink persists emitted events. The Postgres client implements it.
type Sink interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, attemptID string) error
}

var (
	sink            Sink
	sinkMu          sync.RWMutex
	sinkErrorLogged bool
)

// SetSink sets the event persistence backend. A nil sink disables persistence.
func SetSink(s Sink) {
	sinkMu.Lock()
	sink = s
	sinkErrorLogged = false
	sinkMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	sinkMu.RLock()
	s := sink
	errorLogged := sinkErrorLogged
	sinkMu.RUnlock()

	if s != nil {
		attemptID, _ := fields["attempt_id"].(string)
		if err := s.Append(ts, level, name, msg, fields, attemptID); err != nil && !errorLogged {
			// Report the first failure straight into the buffer. Going
			// through Emit would recurse while the sink stays down.
			sinkMu.Lock()
			first := !sinkErrorLogged
			sinkErrorLogged = true
			sinkMu.Unlock()
			if first {
				errEvent := Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "event sink append failed",
					Fields: map[string]interface{}{
						"error": err.Error(),
					},
				}
				buffer.Add(errEvent)
				broadcast(errEvent)
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() uint64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}

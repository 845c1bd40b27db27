package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu    sync.Mutex
	err   error
	calls []string
	ids   []string
}

func (f *fakeSink) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, attemptID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, event)
	f.ids = append(f.ids, attemptID)
	return f.err
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "scene.started", "", nil); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

func TestEmitReturnsJSON(t *testing.T) {
	b, err := Emit("info", "attempt.advanced", "moved", map[string]interface{}{"to": "loop"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if e.Name != "attempt.advanced" {
		t.Errorf("expected event 'attempt.advanced', got '%s'", e.Name)
	}
	if e.Message != "moved" {
		t.Errorf("expected msg 'moved', got '%s'", e.Message)
	}
}

func TestEmitPersistsToSink(t *testing.T) {
	sink := &fakeSink{}
	SetSink(sink)
	defer SetSink(nil)

	Emit("info", "attempt.started", "", map[string]interface{}{"attempt_id": "a-1"})
	Emit("info", "system.startup", "", nil)

	if len(sink.calls) != 2 {
		t.Fatalf("expected 2 sink appends, got %d", len(sink.calls))
	}
	if sink.ids[0] != "a-1" {
		t.Errorf("expected attempt id 'a-1', got '%s'", sink.ids[0])
	}
	if sink.ids[1] != "" {
		t.Errorf("expected empty attempt id, got '%s'", sink.ids[1])
	}
}

func TestEmitReportsSinkFailureOnce(t *testing.T) {
	Clear()
	SetSink(&fakeSink{err: errors.New("connection refused")})
	defer SetSink(nil)

	for i := 0; i < 3; i++ {
		Emit("info", "attempt.submitted", "", nil)
	}

	var errorsSeen int
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorsSeen++
		}
	}
	if errorsSeen != 1 {
		t.Errorf("expected 1 system.error event, got %d", errorsSeen)
	}
}

func TestTotalCountSurvivesClear(t *testing.T) {
	before := TotalCount()
	Emit("info", "system.startup", "", nil)
	Clear()
	Emit("info", "system.startup", "", nil)

	if got := TotalCount() - before; got != 2 {
		t.Errorf("expected total to grow by 2, got %d", got)
	}
	if len(Snapshot()) != 1 {
		t.Errorf("expected 1 buffered event after clear, got %d", len(Snapshot()))
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Name: "attempt.submitted", Fields: map[string]interface{}{"i": i}})
	}

	got := rb.Snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Fields["i"] != 2 || got[2].Fields["i"] != 4 {
		t.Errorf("expected events 2..4 in order, got %v .. %v", got[0].Fields["i"], got[2].Fields["i"])
	}
	if rb.Total() != 5 {
		t.Errorf("expected total 5, got %d", rb.Total())
	}
}

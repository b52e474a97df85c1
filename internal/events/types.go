// Package events provides the in-memory event bus the execution engine
// publishes its state transitions to. Consumers (the JSONL event log, the
// CLI) subscribe; publishing never blocks the engine.
package events

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// EventType identifies a kind of engine event.
type EventType string

const (
	// Task lifecycle
	EventTaskStarted        EventType = "task.started"
	EventTaskCompleted      EventType = "task.completed"
	EventTaskFailed         EventType = "task.failed"
	EventTaskRetryScheduled EventType = "task.retry_scheduled"
	EventTaskExhausted      EventType = "task.retries_exhausted"

	// Verification
	EventVerificationPassed  EventType = "verification.passed"
	EventVerificationFailed  EventType = "verification.failed"
	EventVerificationSkipped EventType = "verification.skipped"

	// Goal lifecycle
	EventGoalStarted   EventType = "goal.started"
	EventGoalCompleted EventType = "goal.completed"
	EventGoalFailed    EventType = "goal.failed"

	// Mission checkpoints
	EventMissionProgress  EventType = "mission.progress"
	EventMissionFinalized EventType = "mission.finalized"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceExecutor EventSource = "executor"
	SourceTracker  EventSource = "tracker"
	SourcePoller   EventSource = "poller"
)

// Event is one entry on the bus. GoalID groups events for the append-only
// per-goal log; it is empty for events outside any goal.
type Event struct {
	ID        string         `json:"id"`
	GoalID    string         `json:"goal_id,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

var eventSeq uint64

func nextEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddUint64(&eventSeq, 1))
}

// EventPayload is implemented by all typed payloads.
type EventPayload interface {
	EventType() EventType
}

// New creates an event from a typed payload.
func New(source EventSource, payload EventPayload) Event {
	return NewForGoal(source, payload, "")
}

// NewForGoal creates an event tagged with a goal identifier.
func NewForGoal(source EventSource, payload EventPayload, goalID string) Event {
	return Event{
		ID:        nextEventID(),
		GoalID:    goalID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// Extract decodes an event's payload back into its typed form.
func Extract[T EventPayload](e Event) (T, bool) {
	var out T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, out.EventType() == e.Type
}

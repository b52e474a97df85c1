package missions

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/nestor-assistant/nestor/internal/events"
)

// Tracker updates mission checkpoints on behalf of the execution engine.
// Every operation is best-effort: failures are logged and swallowed, never
// returned, so checkpointing can never break task execution.
type Tracker struct {
	store Store
	bus   *events.Bus // optional
	now   func() time.Time
}

// NewTracker creates a Tracker. bus may be nil.
func NewTracker(store Store, bus *events.Bus) *Tracker {
	return &Tracker{store: store, bus: bus, now: time.Now}
}

// Load returns the checkpoint for a mission, or ok=false when none exists
// (or the store failed).
func (t *Tracker) Load(ctx context.Context, userID, missionID string) (*Checkpoint, bool) {
	cp, err := t.store.Get(ctx, userID, missionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("mission checkpoint load failed", "user", userID, "mission", missionID, "error", err)
		}
		return nil, false
	}
	return cp, true
}

// UpdateProgress merges a step outcome into the checkpoint's progress sets.
// Re-recording an already-present step is a no-op; a completion moves the
// step out of the failed set. Missing checkpoints are skipped: creation
// belongs to the mission initiator, not the tracker.
func (t *Tracker) UpdateProgress(ctx context.Context, userID, missionID string, step int, completed bool, note string) {
	cp, err := t.store.Get(ctx, userID, missionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Debug("no mission checkpoint to update", "user", userID, "mission", missionID)
		} else {
			slog.Warn("mission checkpoint read failed", "user", userID, "mission", missionID, "error", err)
		}
		return
	}
	if cp.Status.Terminal() {
		slog.Debug("ignoring progress update on finalized mission", "user", userID, "mission", missionID, "status", cp.Status)
		return
	}

	if completed {
		cp.FailedSteps = removeStep(cp.FailedSteps, step)
		if !containsStep(cp.CompletedSteps, step) {
			cp.CompletedSteps = append(cp.CompletedSteps, step)
			sort.Ints(cp.CompletedSteps)
		}
	} else if !containsStep(cp.CompletedSteps, step) && !containsStep(cp.FailedSteps, step) {
		cp.FailedSteps = append(cp.FailedSteps, step)
		sort.Ints(cp.FailedSteps)
	}

	if step > cp.CurrentStep {
		cp.CurrentStep = step
	}
	if note != "" {
		cp.Log = append(cp.Log, LogEntry{Ts: t.now(), Step: step, Note: note})
	}
	cp.UpdatedAt = t.now()

	if err := t.store.Put(ctx, cp); err != nil {
		slog.Warn("mission checkpoint write failed", "user", userID, "mission", missionID, "error", err)
		return
	}

	t.publish(events.New(events.SourceTracker, events.MissionProgressPayload{
		UserID:    userID,
		MissionID: missionID,
		Step:      step,
		Completed: completed,
	}))
}

// Finalize marks a mission terminal. Later calls on an already-terminal
// checkpoint are logged no-ops, so finalization happens exactly once.
func (t *Tracker) Finalize(ctx context.Context, userID, missionID string, status Status, metadata map[string]any) {
	cp, err := t.store.Get(ctx, userID, missionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("mission checkpoint read failed", "user", userID, "mission", missionID, "error", err)
		}
		return
	}
	if cp.Status.Terminal() {
		slog.Debug("mission already finalized", "user", userID, "mission", missionID, "status", cp.Status)
		return
	}

	cp.Status = status
	if len(metadata) > 0 {
		if cp.Metadata == nil {
			cp.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			cp.Metadata[k] = v
		}
	}
	cp.UpdatedAt = t.now()

	if err := t.store.Put(ctx, cp); err != nil {
		slog.Warn("mission checkpoint finalize failed", "user", userID, "mission", missionID, "error", err)
		return
	}

	t.publish(events.New(events.SourceTracker, events.MissionFinalizedPayload{
		UserID:    userID,
		MissionID: missionID,
		Status:    string(status),
	}))
}

// ResumeLatest returns the user's most recently updated in-progress mission,
// or ok=false when there is none.
func (t *Tracker) ResumeLatest(ctx context.Context, userID string) (*Checkpoint, bool) {
	cp, err := t.store.LatestInProgress(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("mission resume lookup failed", "user", userID, "error", err)
		}
		return nil, false
	}
	return cp, true
}

func (t *Tracker) publish(e events.Event) {
	if t.bus != nil {
		t.bus.Publish(e)
	}
}

// Package missions maintains coarse-grained, best-effort progress ledgers
// for long-running missions. A checkpoint is advisory: losing it never
// corrupts task or goal state, it only costs resumption hints.
package missions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no checkpoint exists for a key.
var ErrNotFound = errors.New("mission checkpoint not found")

// Status is the lifecycle state of a mission checkpoint.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusAbandoned
}

// LogEntry is one verification note in a checkpoint's log.
type LogEntry struct {
	Ts   time.Time `json:"ts"`
	Step int       `json:"step"`
	Note string    `json:"note"`
}

// Checkpoint records mission progress keyed by (user, mission).
type Checkpoint struct {
	UserID         string         `json:"user_id"`
	MissionID      string         `json:"mission_id"`
	CurrentStep    int            `json:"current_step"`
	CompletedSteps []int          `json:"completed_steps,omitempty"`
	FailedSteps    []int          `json:"failed_steps,omitempty"`
	Log            []LogEntry     `json:"log,omitempty"`
	Status         Status         `json:"status"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Store persists mission checkpoints.
type Store interface {
	// Get returns the checkpoint for a key, or ErrNotFound.
	Get(ctx context.Context, userID, missionID string) (*Checkpoint, error)

	// Put creates or replaces a checkpoint.
	Put(ctx context.Context, cp *Checkpoint) error

	// LatestInProgress returns the user's most recently updated in-progress
	// checkpoint, or ErrNotFound.
	LatestInProgress(ctx context.Context, userID string) (*Checkpoint, error)
}

// containsStep reports whether step is already in the set.
func containsStep(set []int, step int) bool {
	for _, s := range set {
		if s == step {
			return true
		}
	}
	return false
}

// removeStep returns set without step, preserving order.
func removeStep(set []int, step int) []int {
	out := set[:0]
	for _, s := range set {
		if s != step {
			out = append(out, s)
		}
	}
	return out
}

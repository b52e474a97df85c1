// Package engine implements the resumable task/goal execution engine: a
// checkpointed, retrying orchestrator that drives multi-step goals composed
// of discrete tasks, delegates result verification to a pluggable registry,
// and persists enough state to resume after a crash or restart.
package engine

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nestor-assistant/nestor/internal/verify"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskFailed    TaskState = "failed"
	TaskCompleted TaskState = "completed"
	TaskCancelled TaskState = "cancelled"
)

// VerificationStatus records whether a task's result passed verification.
type VerificationStatus string

const (
	VerificationUnknown  VerificationStatus = "unknown"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// Task is a single unit of work within a goal, with its own retry and
// backoff state.
type Task struct {
	ID     string `json:"id"`
	GoalID string `json:"goal_id"`
	Title  string `json:"title"`

	// Type names the tool or capability the unit of work invokes; the
	// verifier registry also keys on it.
	Type   string         `json:"type,omitempty"`
	Params map[string]any `json:"params,omitempty"`

	State        TaskState          `json:"state"`
	StepIndex    int                `json:"step_index"`
	Retries      int                `json:"retries"`
	MaxRetries   int                `json:"max_retries"`
	BackoffUntil *time.Time         `json:"backoff_until,omitempty"`
	LastError    string             `json:"last_error,omitempty"`
	Verification VerificationStatus `json:"verification_status"`

	// Expected, when present, routes the step result through the verifier
	// registry before the task is marked completed.
	Expected *verify.Expectation `json:"expected,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Version guards read-modify-write cycles: updates only apply when the
	// stored version matches, so two concurrent executions of the same task
	// cannot both win the running transition.
	Version int64 `json:"version"`
}

// Exhausted reports whether the task failed terminally: the exhausted write
// bumps Retries past MaxRetries (invariant: Retries <= MaxRetries+1).
func (t *Task) Exhausted() bool {
	return t.State == TaskFailed && t.Retries > t.MaxRetries
}

// Terminal reports whether the task will never execute again.
func (t *Task) Terminal() bool {
	return t.State == TaskCompleted || t.State == TaskCancelled || t.Exhausted()
}

// RetryEligible reports whether a failed task may execute again at now.
func (t *Task) RetryEligible(now time.Time) bool {
	if t.State != TaskFailed || t.Exhausted() {
		return false
	}
	return t.BackoffUntil == nil || !now.Before(*t.BackoffUntil)
}

// GoalStatus is the lifecycle state of a goal. It is written explicitly by
// the executor, never derived from task states, so it may diverge
// transiently during iteration.
type GoalStatus string

const (
	GoalPending    GoalStatus = "pending"
	GoalInProgress GoalStatus = "in_progress"
	GoalCompleted  GoalStatus = "completed"
	GoalFailed     GoalStatus = "failed"
	GoalCancelled  GoalStatus = "cancelled"
)

// Terminal reports whether the goal is finished.
func (s GoalStatus) Terminal() bool {
	return s == GoalCompleted || s == GoalFailed || s == GoalCancelled
}

// Goal is an ordered collection of tasks forming a multi-step objective.
// The goal owns the step ordering; tasks are stored independently.
type Goal struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Status  GoalStatus `json:"status"`
	TaskIDs []string   `json:"task_ids"`

	// UserID and MissionID, when set, key the advisory mission checkpoint
	// the executor updates as steps finish.
	UserID    string `json:"user_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int64          `json:"version"`
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	return "task_" + shortUUID()
}

// GenerateGoalID creates a unique goal identifier.
func GenerateGoalID() string {
	return "goal_" + shortUUID()
}

func shortUUID() string {
	u := uuid.New().String()
	return strings.ReplaceAll(u[:8], "-", "")
}

package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a task or goal does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when an update's version no longer
	// matches the stored entity, meaning another invocation got there
	// first.
	ErrVersionConflict = errors.New("version conflict")
)

// TaskFilter selects tasks for listing. Zero values match everything.
type TaskFilter struct {
	GoalID string
	State  TaskState
	Limit  int
}

// TaskStore persists tasks. Update is version-guarded: it applies only when
// the stored version equals the given task's Version, then increments it.
type TaskStore interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error

	// ListTasks returns tasks matching the filter, most recently updated
	// first.
	ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error)

	// ListByGoal returns a goal's tasks ordered by step index. limit <= 0
	// means no limit.
	ListByGoal(ctx context.Context, goalID string, limit, offset int) ([]*Task, error)

	// ListReadyToRetry returns up to limit failed tasks whose backoff
	// deadline has elapsed and whose retries are not exhausted, ordered by
	// deadline.
	ListReadyToRetry(ctx context.Context, limit int) ([]*Task, error)
}

// GoalStore persists goals with the same version-guarded update contract.
type GoalStore interface {
	CreateGoal(ctx context.Context, g *Goal) error
	GetGoal(ctx context.Context, id string) (*Goal, error)
	UpdateGoal(ctx context.Context, g *Goal) error
}

// Store combines task and goal persistence; both provided implementations
// (file, SQLite) satisfy it.
type Store interface {
	TaskStore
	GoalStore
}

// StepResult is what a unit of work hands back on success.
type StepResult struct {
	// Output is the opaque result payload, routed to the verifier registry
	// when the task carries an expectation.
	Output map[string]any
}

// StepRunner performs the actual unit of work for one task: a tool call, an
// API invocation, whatever the task's type and params describe. Supplied by
// the caller; the engine imposes no timeout of its own.
type StepRunner interface {
	RunStep(ctx context.Context, t *Task) (*StepResult, error)
}

// StepRunnerFunc adapts a function to StepRunner.
type StepRunnerFunc func(ctx context.Context, t *Task) (*StepResult, error)

func (f StepRunnerFunc) RunStep(ctx context.Context, t *Task) (*StepResult, error) {
	return f(ctx, t)
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nestor-assistant/nestor/internal/events"
	"github.com/nestor-assistant/nestor/internal/missions"
	"github.com/nestor-assistant/nestor/internal/verify"
)

// exhaustedSuffix annotates the last error of a task whose retries ran out.
const exhaustedSuffix = " (max retries exceeded)"

// defaultRetryBatch bounds how many tasks one RetryFailedTasks call processes.
const defaultRetryBatch = 20

// ExecutorConfig holds the executor's collaborators. Tasks, Goals, Runner
// and Backoff are required; the rest may be nil (events and checkpoints are
// then skipped, verification falls back to an empty registry).
type ExecutorConfig struct {
	Tasks  TaskStore
	Goals  GoalStore
	Runner StepRunner

	Backoff   BackoffStrategy
	Verifiers *verify.Registry
	Bus       *events.Bus
	Missions  *missions.Tracker

	// RetryBatchSize bounds RetryFailedTasks; 0 means the default (20).
	RetryBatchSize int

	// FailGoalOnExhausted makes goal iteration abort when a task exhausts
	// its retries. Off by default: an exhausted task is recorded and
	// iteration continues, so the goal can still complete.
	FailGoalOnExhausted bool

	// DisableVerification skips the verifier registry entirely; successful
	// steps are marked verified immediately.
	DisableVerification bool
}

// Executor drives single-task execution, goal-level iteration, retry
// scheduling and mission checkpoint updates. It owns no goroutines and
// never sleeps: an external driver supplies the call cadence, and retries
// become eligible purely by their backoff deadline passing.
type Executor struct {
	tasks     TaskStore
	goals     GoalStore
	runner    StepRunner
	backoff   BackoffStrategy
	verifiers *verify.Registry
	bus       *events.Bus
	missions  *missions.Tracker

	retryBatch      int
	failOnExhausted bool
	verifyResults   bool

	now func() time.Time
}

// NewExecutor creates an Executor from its collaborators.
func NewExecutor(cfg ExecutorConfig) *Executor {
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewExponentialBackoff(0, 0, 0, 0)
	}
	verifiers := cfg.Verifiers
	if verifiers == nil {
		verifiers = verify.NewRegistry()
	}
	batch := cfg.RetryBatchSize
	if batch <= 0 {
		batch = defaultRetryBatch
	}

	return &Executor{
		tasks:           cfg.Tasks,
		goals:           cfg.Goals,
		runner:          cfg.Runner,
		backoff:         backoff,
		verifiers:       verifiers,
		bus:             cfg.Bus,
		missions:        cfg.Missions,
		retryBatch:      batch,
		failOnExhausted: cfg.FailGoalOnExhausted,
		verifyResults:   !cfg.DisableVerification,
		now:             time.Now,
	}
}

// ExecuteTask runs a single task to its next stable state and returns it.
//
// Terminal tasks, tasks still inside their backoff window and tasks already
// running elsewhere are returned unchanged; the caller re-polls later. Step
// failures are absorbed into retry scheduling and come back as a non-error
// task in a failed state. Only missing entities and store failures return
// errors.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) (*Task, error) {
	t, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	g, err := e.goals.GetGoal(ctx, t.GoalID)
	if err != nil {
		return nil, err
	}

	if t.Terminal() {
		return t, nil
	}
	if t.State == TaskRunning {
		// Claimed by another invocation, or orphaned by a crash; recovery
		// resets orphans at startup.
		return t, nil
	}
	if t.State == TaskFailed && !t.RetryEligible(e.now()) {
		return t, nil
	}

	// Claim. The version guard makes this a compare-and-swap: a concurrent
	// invocation of the same task loses with ErrVersionConflict.
	t.State = TaskRunning
	if err := e.tasks.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("claim task %s: %w", t.ID, err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.TaskStartedPayload{
		TaskID:    t.ID,
		Title:     t.Title,
		StepIndex: t.StepIndex,
	}, t.GoalID))

	startedAt := e.now()
	res, err := e.runner.RunStep(ctx, t)
	if err != nil {
		return e.failStep(ctx, g, t, err)
	}

	if outcome, verr := e.verifyResult(ctx, t, res); verr != nil {
		return nil, verr
	} else if outcome != nil && !outcome.Passed {
		return e.failStep(ctx, g, t, fmt.Errorf("verification failed: %s", strings.Join(outcome.Errors, "; ")))
	}

	t.State = TaskCompleted
	t.Verification = VerificationVerified
	t.BackoffUntil = nil
	t.LastError = ""
	if err := e.tasks.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("complete task %s: %w", t.ID, err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.TaskCompletedPayload{
		TaskID:   t.ID,
		Title:    t.Title,
		Duration: e.now().Sub(startedAt),
	}, t.GoalID))

	e.checkpointStep(ctx, g, t, true, "")
	return t, nil
}

// verifyResult routes a successful step result through the verifier
// registry. A nil outcome means verification did not apply (disabled, no
// expectation, or no verifier registered; the last is an automatic pass,
// recorded as a skip). A verifier that errors counts as a failed check: the
// step re-runs through the normal retry path, which also rides out
// transient judge outages.
func (e *Executor) verifyResult(ctx context.Context, t *Task, res *StepResult) (*verify.Result, error) {
	if !e.verifyResults || t.Expected == nil {
		return nil, nil
	}

	v, match := e.verifiers.Lookup(t.Type, t.Expected)
	if match == verify.MatchNone {
		e.publish(events.NewForGoal(events.SourceExecutor, events.VerificationSkippedPayload{
			TaskID: t.ID,
			Tool:   t.Type,
		}, t.GoalID))
		return nil, nil
	}

	var output map[string]any
	if res != nil {
		output = res.Output
	}

	outcome, err := v.Verify(ctx, output, t.Expected)
	if err != nil {
		slog.Warn("verifier errored, treating as failed check",
			"task_id", t.ID, "verifier", v.Name(), "error", err)
		outcome = &verify.Result{Errors: []string{err.Error()}}
	}

	if outcome.Passed {
		e.publish(events.NewForGoal(events.SourceExecutor, events.VerificationPayload{
			TaskID:   t.ID,
			Verifier: v.Name(),
			Passed:   true,
		}, t.GoalID))
	} else {
		e.publish(events.NewForGoal(events.SourceExecutor, events.VerificationFailedPayload{
			TaskID:   t.ID,
			Verifier: v.Name(),
			Passed:   false,
			Errors:   outcome.Errors,
		}, t.GoalID))
	}
	return outcome, nil
}

// failStep applies the retry policy to a failed step. Within budget the
// task is parked until its backoff deadline; otherwise it becomes
// terminally failed. Either way the step error itself is absorbed; only
// store failures propagate.
func (e *Executor) failStep(ctx context.Context, g *Goal, t *Task, stepErr error) (*Task, error) {
	e.publish(events.NewForGoal(events.SourceExecutor, events.TaskFailedPayload{
		TaskID:  t.ID,
		Title:   t.Title,
		Error:   stepErr.Error(),
		Retries: t.Retries,
	}, t.GoalID))

	if t.Retries < t.MaxRetries {
		// Backoff grows with the pre-increment attempt count: the first
		// failure schedules with attempt 0.
		next := e.backoff.NextRetryTime(t.Retries)
		t.State = TaskFailed
		t.BackoffUntil = &next
		t.Retries++
		t.LastError = stepErr.Error()
		if err := e.tasks.UpdateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("schedule retry for task %s: %w", t.ID, err)
		}

		e.publish(events.NewForGoal(events.SourceExecutor, events.TaskRetryScheduledPayload{
			TaskID:  t.ID,
			Retries: t.Retries,
			RetryAt: next,
		}, t.GoalID))
		return t, nil
	}

	t.State = TaskFailed
	t.BackoffUntil = nil
	t.Retries++
	t.LastError = stepErr.Error() + exhaustedSuffix
	t.Verification = VerificationFailed
	if err := e.tasks.UpdateTask(ctx, t); err != nil {
		return nil, fmt.Errorf("exhaust task %s: %w", t.ID, err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.TaskExhaustedPayload{
		TaskID:  t.ID,
		Retries: t.Retries,
		Error:   t.LastError,
	}, t.GoalID))

	e.checkpointStep(ctx, g, t, false, t.LastError)
	return t, nil
}

// ExecuteGoal iterates a goal's tasks in step order, executing each through
// ExecuteTask. Already-terminal tasks are skipped, so re-invocation after a
// crash is idempotent at task granularity. Store-level errors abort the
// iteration and mark the goal failed; ordinary step failures do not, they
// are absorbed into retry scheduling and the goal still completes.
func (e *Executor) ExecuteGoal(ctx context.Context, goalID string) error {
	g, err := e.goals.GetGoal(ctx, goalID)
	if err != nil {
		return err
	}

	g.Status = GoalInProgress
	if err := e.goals.UpdateGoal(ctx, g); err != nil {
		return fmt.Errorf("start goal %s: %w", g.ID, err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.GoalStartedPayload{
		GoalID: g.ID,
		Title:  g.Title,
		Tasks:  len(g.TaskIDs),
	}, g.ID))

	for _, taskID := range g.TaskIDs {
		t, err := e.tasks.GetTask(ctx, taskID)
		if err != nil {
			return e.abortGoal(ctx, g, err)
		}
		if t.State == TaskCompleted || t.State == TaskCancelled {
			continue
		}

		t, err = e.ExecuteTask(ctx, taskID)
		if err != nil {
			return e.abortGoal(ctx, g, err)
		}
		if e.failOnExhausted && t.Exhausted() {
			return e.abortGoal(ctx, g, fmt.Errorf("task %s: %s", t.ID, t.LastError))
		}
	}

	g.Status = GoalCompleted
	if err := e.goals.UpdateGoal(ctx, g); err != nil {
		return fmt.Errorf("complete goal %s: %w", g.ID, err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.GoalCompletedPayload{
		GoalID: g.ID,
		Title:  g.Title,
	}, g.ID))

	e.finalizeMission(ctx, g, missions.StatusCompleted)
	return nil
}

func (e *Executor) abortGoal(ctx context.Context, g *Goal, cause error) error {
	g.Status = GoalFailed
	if err := e.goals.UpdateGoal(ctx, g); err != nil {
		slog.Error("mark goal failed", "goal_id", g.ID, "error", err)
	}

	e.publish(events.NewForGoal(events.SourceExecutor, events.GoalFailedPayload{
		GoalID: g.ID,
		Title:  g.Title,
		Error:  cause.Error(),
	}, g.ID))

	e.finalizeMission(ctx, g, missions.StatusFailed)
	return fmt.Errorf("goal %s: %w", g.ID, cause)
}

// ResumeGoal continues an interrupted goal. Terminal goals are left alone.
// A goal whose tasks are all terminal is completed directly, without
// executing anything; otherwise iteration restarts from the top, skipping
// finished tasks. Resumption is idempotent at task granularity only: a
// partially done unit of work restarts from scratch.
func (e *Executor) ResumeGoal(ctx context.Context, goalID string) error {
	g, err := e.goals.GetGoal(ctx, goalID)
	if err != nil {
		return err
	}
	if g.Status == GoalCompleted || g.Status == GoalCancelled {
		return nil
	}

	remaining := false
	for _, taskID := range g.TaskIDs {
		t, err := e.tasks.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if !t.Terminal() {
			remaining = true
			break
		}
	}

	if !remaining {
		g.Status = GoalCompleted
		if err := e.goals.UpdateGoal(ctx, g); err != nil {
			return fmt.Errorf("complete goal %s: %w", g.ID, err)
		}
		e.publish(events.NewForGoal(events.SourceExecutor, events.GoalCompletedPayload{
			GoalID: g.ID,
			Title:  g.Title,
		}, g.ID))
		e.finalizeMission(ctx, g, missions.StatusCompleted)
		return nil
	}

	return e.ExecuteGoal(ctx, goalID)
}

// RetryFailedTasks executes one bounded batch of retry-eligible tasks.
// Each task runs independently: one bad task cannot block the rest of the
// batch. An external poller drives the cadence.
func (e *Executor) RetryFailedTasks(ctx context.Context) error {
	batch, err := e.tasks.ListReadyToRetry(ctx, e.retryBatch)
	if err != nil {
		return fmt.Errorf("list retry-eligible tasks: %w", err)
	}

	for _, t := range batch {
		if _, err := e.ExecuteTask(ctx, t.ID); err != nil {
			slog.Error("retry execution failed", "task_id", t.ID, "error", err)
		}
	}
	return nil
}

// FailedTasksReadyForRetry returns the batch RetryFailedTasks would process
// right now, without executing anything.
func (e *Executor) FailedTasksReadyForRetry(ctx context.Context) ([]*Task, error) {
	return e.tasks.ListReadyToRetry(ctx, e.retryBatch)
}

// checkpointStep records a step outcome on the goal's mission checkpoint,
// best-effort, when the goal is mission-keyed.
func (e *Executor) checkpointStep(ctx context.Context, g *Goal, t *Task, completed bool, note string) {
	if e.missions == nil || g.MissionID == "" {
		return
	}
	e.missions.UpdateProgress(ctx, g.UserID, g.MissionID, t.StepIndex, completed, note)
}

func (e *Executor) finalizeMission(ctx context.Context, g *Goal, status missions.Status) {
	if e.missions == nil || g.MissionID == "" {
		return
	}
	e.missions.Finalize(ctx, g.UserID, g.MissionID, status, map[string]any{"goal_id": g.ID})
}

func (e *Executor) publish(ev events.Event) {
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}

package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nestor-assistant/nestor/internal/verify"
)

// storeUnderTest runs the same contract checks against each backend.
func storeUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := OpenSQLStore(filepath.Join(t.TempDir(), "nestor.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"sqlite": sqlStore,
	}
}

func TestStoreTaskRoundTrip(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := &Task{
				GoalID:     "goal_abc",
				Title:      "fetch the report",
				Type:       "http",
				Params:     map[string]any{"url": "https://example.com"},
				StepIndex:  2,
				MaxRetries: 3,
				Expected: &verify.Expectation{
					VerifierType: "fields",
					Value:        map[string]any{"status": "ok"},
				},
				Metadata: map[string]any{"origin": "planner"},
			}
			if err := store.CreateTask(ctx, task); err != nil {
				t.Fatal(err)
			}
			if task.ID == "" {
				t.Fatal("no ID assigned on create")
			}
			if task.State != TaskPending {
				t.Errorf("state = %q, want pending default", task.State)
			}
			if task.Version != 1 {
				t.Errorf("version = %d, want 1", task.Version)
			}

			got, err := store.GetTask(ctx, task.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Title != task.Title || got.GoalID != task.GoalID || got.StepIndex != 2 {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if got.Expected == nil || got.Expected.VerifierType != "fields" {
				t.Errorf("expectation lost in round trip: %+v", got.Expected)
			}
			if got.Params["url"] != "https://example.com" {
				t.Errorf("params lost in round trip: %+v", got.Params)
			}
		})
	}
}

func TestStoreTaskNotFound(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.GetTask(context.Background(), "task_nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
			if _, err := store.GetGoal(context.Background(), "goal_nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("goal err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreTaskVersionConflict(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := &Task{GoalID: "goal_abc", Title: "contested"}
			if err := store.CreateTask(ctx, task); err != nil {
				t.Fatal(err)
			}

			first, err := store.GetTask(ctx, task.ID)
			if err != nil {
				t.Fatal(err)
			}
			second, err := store.GetTask(ctx, task.ID)
			if err != nil {
				t.Fatal(err)
			}

			first.State = TaskRunning
			if err := store.UpdateTask(ctx, first); err != nil {
				t.Fatal(err)
			}
			if first.Version != 2 {
				t.Errorf("version after update = %d, want 2", first.Version)
			}

			second.State = TaskRunning
			if err := store.UpdateTask(ctx, second); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("stale update err = %v, want ErrVersionConflict", err)
			}

			got, err := store.GetTask(ctx, task.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Version != 2 {
				t.Errorf("stored version = %d, want 2 after one successful update", got.Version)
			}
		})
	}
}

func TestStoreUpdateMissingTask(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ghost := &Task{ID: "task_ghost", GoalID: "goal_abc", Version: 1}
			if err := store.UpdateTask(context.Background(), ghost); !errors.Is(err, ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreListByGoal(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			// Create out of step order; listing must come back ordered.
			for _, idx := range []int{2, 0, 1} {
				task := &Task{GoalID: "goal_list", Title: "step", StepIndex: idx}
				if err := store.CreateTask(ctx, task); err != nil {
					t.Fatal(err)
				}
			}
			other := &Task{GoalID: "goal_other", Title: "noise"}
			if err := store.CreateTask(ctx, other); err != nil {
				t.Fatal(err)
			}

			got, err := store.ListByGoal(ctx, "goal_list", 0, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 3 {
				t.Fatalf("got %d tasks, want 3", len(got))
			}
			for i, task := range got {
				if task.StepIndex != i {
					t.Errorf("position %d has step index %d", i, task.StepIndex)
				}
			}

			page, err := store.ListByGoal(ctx, "goal_list", 1, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(page) != 1 || page[0].StepIndex != 1 {
				t.Errorf("page = %+v, want just step 1", page)
			}

			empty, err := store.ListByGoal(ctx, "goal_list", 10, 99)
			if err != nil {
				t.Fatal(err)
			}
			if len(empty) != 0 {
				t.Errorf("offset past the end returned %d tasks", len(empty))
			}
		})
	}
}

func TestStoreListReadyToRetry(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			past := time.Now().Add(-time.Minute)
			later := time.Now().Add(-30 * time.Second)
			future := time.Now().Add(time.Hour)

			mk := func(title string, backoff *time.Time, retries, maxRetries int, state TaskState) *Task {
				task := &Task{GoalID: "goal_retry", Title: title, MaxRetries: maxRetries}
				if err := store.CreateTask(ctx, task); err != nil {
					t.Fatal(err)
				}
				task.State = state
				task.BackoffUntil = backoff
				task.Retries = retries
				if err := store.UpdateTask(ctx, task); err != nil {
					t.Fatal(err)
				}
				return task
			}

			eligibleOld := mk("eligible old", &past, 1, 3, TaskFailed)
			eligibleNew := mk("eligible new", &later, 1, 3, TaskFailed)
			mk("still backing off", &future, 1, 3, TaskFailed)
			mk("exhausted", &past, 4, 3, TaskFailed)
			mk("completed", nil, 0, 3, TaskCompleted)
			mk("no deadline", nil, 1, 3, TaskFailed)

			got, err := store.ListReadyToRetry(ctx, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d tasks ready, want 2: %+v", len(got), got)
			}
			if got[0].ID != eligibleOld.ID || got[1].ID != eligibleNew.ID {
				t.Errorf("ordering wrong: got %s, %s", got[0].Title, got[1].Title)
			}

			one, err := store.ListReadyToRetry(ctx, 1)
			if err != nil {
				t.Fatal(err)
			}
			if len(one) != 1 || one[0].ID != eligibleOld.ID {
				t.Errorf("limit 1 returned %+v, want the oldest deadline", one)
			}
		})
	}
}

func TestStoreListTasksFilter(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				task := &Task{GoalID: "goal_a", Title: "a"}
				if err := store.CreateTask(ctx, task); err != nil {
					t.Fatal(err)
				}
			}
			b := &Task{GoalID: "goal_b", Title: "b"}
			if err := store.CreateTask(ctx, b); err != nil {
				t.Fatal(err)
			}
			b.State = TaskCancelled
			if err := store.UpdateTask(ctx, b); err != nil {
				t.Fatal(err)
			}

			byGoal, err := store.ListTasks(ctx, TaskFilter{GoalID: "goal_a"})
			if err != nil {
				t.Fatal(err)
			}
			if len(byGoal) != 3 {
				t.Errorf("goal filter returned %d, want 3", len(byGoal))
			}

			byState, err := store.ListTasks(ctx, TaskFilter{State: TaskCancelled})
			if err != nil {
				t.Fatal(err)
			}
			if len(byState) != 1 || byState[0].ID != b.ID {
				t.Errorf("state filter returned %+v", byState)
			}

			limited, err := store.ListTasks(ctx, TaskFilter{Limit: 2})
			if err != nil {
				t.Fatal(err)
			}
			if len(limited) != 2 {
				t.Errorf("limit 2 returned %d", len(limited))
			}
		})
	}
}

func TestStoreGoalRoundTrip(t *testing.T) {
	for name, store := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			goal := &Goal{
				Title:     "book the trip",
				TaskIDs:   []string{"task_1", "task_2"},
				UserID:    "user_7",
				MissionID: "mission_42",
				Metadata:  map[string]any{"priority": "high"},
			}
			if err := store.CreateGoal(ctx, goal); err != nil {
				t.Fatal(err)
			}
			if goal.Status != GoalPending {
				t.Errorf("status = %q, want pending default", goal.Status)
			}

			got, err := store.GetGoal(ctx, goal.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Title != goal.Title || got.MissionID != "mission_42" {
				t.Errorf("round trip mismatch: %+v", got)
			}
			if len(got.TaskIDs) != 2 || got.TaskIDs[0] != "task_1" {
				t.Errorf("task ids lost: %v", got.TaskIDs)
			}

			got.Status = GoalInProgress
			if err := store.UpdateGoal(ctx, got); err != nil {
				t.Fatal(err)
			}

			stale := &Goal{ID: goal.ID, Title: goal.Title, Version: 1}
			if err := store.UpdateGoal(ctx, stale); !errors.Is(err, ErrVersionConflict) {
				t.Errorf("stale goal update err = %v, want ErrVersionConflict", err)
			}
		})
	}
}

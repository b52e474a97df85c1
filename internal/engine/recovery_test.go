package engine

import (
	"context"
	"testing"
)

func TestRecoverOrphanedTasks(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	seed := func(title string, state TaskState) *Task {
		task := &Task{GoalID: "goal_r", Title: title}
		if err := store.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
		if state != TaskPending {
			task.State = state
			if err := store.UpdateTask(ctx, task); err != nil {
				t.Fatal(err)
			}
		}
		return task
	}

	orphan1 := seed("orphan-1", TaskRunning)
	orphan2 := seed("orphan-2", TaskRunning)
	pending := seed("pending", TaskPending)
	completed := seed("completed", TaskCompleted)

	n, err := RecoverOrphanedTasks(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("recovered %d tasks, want 2", n)
	}

	for _, id := range []string{orphan1.ID, orphan2.ID, pending.ID} {
		got, err := store.GetTask(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.State != TaskPending {
			t.Errorf("task %s state = %q, want pending", id, got.State)
		}
	}

	got, err := store.GetTask(ctx, completed.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != TaskCompleted {
		t.Errorf("completed task disturbed: %q", got.State)
	}
}

func TestRecoverOrphanedTasksEmpty(t *testing.T) {
	n, err := RecoverOrphanedTasks(context.Background(), newMemStore())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("recovered %d from empty store", n)
	}
}

package engine

import (
	"context"
	"log/slog"
)

// RecoverOrphanedTasks resets tasks stranded in the running state back to
// pending. Should be called on startup before any executor runs: a task can
// only be running while a process holds it, so after a crash every running
// task is an orphan.
func RecoverOrphanedTasks(ctx context.Context, store TaskStore) (int, error) {
	orphans, err := store.ListTasks(ctx, TaskFilter{State: TaskRunning})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, t := range orphans {
		t.State = TaskPending
		if err := store.UpdateTask(ctx, t); err != nil {
			slog.Warn("recover orphaned task", "task_id", t.ID, "error", err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		slog.Info("recovered orphaned tasks", "count", recovered)
	}
	return recovered, nil
}

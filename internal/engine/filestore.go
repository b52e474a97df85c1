package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/nestor-assistant/nestor/internal/storage/dirstore"
)

// FileStore persists tasks and goals as directories of JSON documents.
// Version guards are enforced under the per-tree lock, which is enough for
// the single-process deployments the file backend targets; multi-process
// callers should use the SQLite store.
type FileStore struct {
	tasks *dirstore.Store
	goals *dirstore.Store

	now func() time.Time
}

// NewFileStore creates a FileStore rooted at baseDir, with tasks/ and
// goals/ subtrees.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{
		tasks: dirstore.New(filepath.Join(baseDir, "tasks"), "task"),
		goals: dirstore.New(filepath.Join(baseDir, "goals"), "goal"),
		now:   time.Now,
	}
}

const metaFile = "meta.json"

func (fs *FileStore) CreateTask(_ context.Context, t *Task) error {
	fs.tasks.Lock()
	defer fs.tasks.Unlock()

	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.State == "" {
		t.State = TaskPending
	}
	if t.Verification == "" {
		t.Verification = VerificationUnknown
	}
	now := fs.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1

	return fs.tasks.WriteDoc(t.ID, metaFile, t)
}

func (fs *FileStore) GetTask(_ context.Context, id string) (*Task, error) {
	fs.tasks.RLock()
	defer fs.tasks.RUnlock()

	return readTask(fs.tasks, id)
}

func readTask(ds *dirstore.Store, id string) (*Task, error) {
	var t Task
	if err := ds.ReadDoc(id, metaFile, &t); err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

func (fs *FileStore) UpdateTask(_ context.Context, t *Task) error {
	fs.tasks.Lock()
	defer fs.tasks.Unlock()

	stored, err := readTask(fs.tasks, t.ID)
	if err != nil {
		return err
	}
	if stored.Version != t.Version {
		return fmt.Errorf("task %s: stored version %d, update against %d: %w",
			t.ID, stored.Version, t.Version, ErrVersionConflict)
	}

	t.Version++
	t.UpdatedAt = fs.now()
	return fs.tasks.WriteDoc(t.ID, metaFile, t)
}

func (fs *FileStore) ListTasks(_ context.Context, filter TaskFilter) ([]*Task, error) {
	fs.tasks.RLock()
	defer fs.tasks.RUnlock()

	ids, err := fs.tasks.IDs()
	if err != nil {
		return nil, err
	}

	var out []*Task
	for _, id := range ids {
		t, err := readTask(fs.tasks, id)
		if err != nil {
			continue // skip corrupted entries
		}
		if filter.GoalID != "" && t.GoalID != filter.GoalID {
			continue
		}
		if filter.State != "" && t.State != filter.State {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (fs *FileStore) ListByGoal(ctx context.Context, goalID string, limit, offset int) ([]*Task, error) {
	all, err := fs.ListTasks(ctx, TaskFilter{GoalID: goalID})
	if err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StepIndex < all[j].StepIndex
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (fs *FileStore) ListReadyToRetry(ctx context.Context, limit int) ([]*Task, error) {
	all, err := fs.ListTasks(ctx, TaskFilter{State: TaskFailed})
	if err != nil {
		return nil, err
	}

	now := fs.now()
	var out []*Task
	for _, t := range all {
		if t.BackoffUntil == nil || !t.RetryEligible(now) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].BackoffUntil.Before(*out[j].BackoffUntil)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (fs *FileStore) CreateGoal(_ context.Context, g *Goal) error {
	fs.goals.Lock()
	defer fs.goals.Unlock()

	if g.ID == "" {
		g.ID = GenerateGoalID()
	}
	if g.Status == "" {
		g.Status = GoalPending
	}
	now := fs.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.Version = 1

	return fs.goals.WriteDoc(g.ID, metaFile, g)
}

func (fs *FileStore) GetGoal(_ context.Context, id string) (*Goal, error) {
	fs.goals.RLock()
	defer fs.goals.RUnlock()

	return readGoal(fs.goals, id)
}

func readGoal(ds *dirstore.Store, id string) (*Goal, error) {
	var g Goal
	if err := ds.ReadDoc(id, metaFile, &g); err != nil {
		if errors.Is(err, dirstore.ErrNotFound) {
			return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &g, nil
}

func (fs *FileStore) UpdateGoal(_ context.Context, g *Goal) error {
	fs.goals.Lock()
	defer fs.goals.Unlock()

	stored, err := readGoal(fs.goals, g.ID)
	if err != nil {
		return err
	}
	if stored.Version != g.Version {
		return fmt.Errorf("goal %s: stored version %d, update against %d: %w",
			g.ID, stored.Version, g.Version, ErrVersionConflict)
	}

	g.Version++
	g.UpdatedAt = fs.now()
	return fs.goals.WriteDoc(g.ID, metaFile, g)
}

// ListGoals returns every goal, most recently updated first.
func (fs *FileStore) ListGoals(_ context.Context) ([]*Goal, error) {
	fs.goals.RLock()
	defer fs.goals.RUnlock()

	ids, err := fs.goals.IDs()
	if err != nil {
		return nil, err
	}

	var out []*Goal
	for _, id := range ids {
		g, err := readGoal(fs.goals, id)
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

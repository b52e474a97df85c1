package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore persists tasks and goals in SQLite. Updates are guarded with
// UPDATE ... WHERE version = ?, so the compare-and-swap holds across
// processes, not just within one.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLStore opens (and migrates) a SQLite database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := &SQLStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id                  TEXT PRIMARY KEY,
	goal_id             TEXT NOT NULL,
	title               TEXT NOT NULL,
	type                TEXT NOT NULL DEFAULT '',
	params              TEXT NOT NULL DEFAULT '{}',
	state               TEXT NOT NULL,
	step_index          INTEGER NOT NULL DEFAULT 0,
	retries             INTEGER NOT NULL DEFAULT 0,
	max_retries         INTEGER NOT NULL DEFAULT 0,
	backoff_until       INTEGER,
	last_error          TEXT NOT NULL DEFAULT '',
	verification_status TEXT NOT NULL DEFAULT 'unknown',
	expected            TEXT,
	metadata            TEXT NOT NULL DEFAULT '{}',
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	version             INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_goal ON tasks(goal_id, step_index);
CREATE INDEX IF NOT EXISTS idx_tasks_retry ON tasks(state, backoff_until);

CREATE TABLE IF NOT EXISTS goals (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL,
	task_ids   TEXT NOT NULL DEFAULT '[]',
	user_id    TEXT NOT NULL DEFAULT '',
	mission_id TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	version    INTEGER NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *SQLStore) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = GenerateTaskID()
	}
	if t.State == "" {
		t.State = TaskPending
	}
	if t.Verification == "" {
		t.Verification = VerificationUnknown
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1

	params, err := marshalJSON(t.Params)
	if err != nil {
		return fmt.Errorf("marshal task params: %w", err)
	}
	meta, err := marshalJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}
	var expected sql.NullString
	if t.Expected != nil {
		data, err := json.Marshal(t.Expected)
		if err != nil {
			return fmt.Errorf("marshal task expectation: %w", err)
		}
		expected = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO tasks (id, goal_id, title, type, params, state, step_index, retries,
	max_retries, backoff_until, last_error, verification_status, expected,
	metadata, created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.GoalID, t.Title, t.Type, params, string(t.State), t.StepIndex,
		t.Retries, t.MaxRetries, nullUnix(t.BackoffUntil), t.LastError,
		string(t.Verification), expected, meta, now.UnixMilli(), now.UnixMilli(), t.Version)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return nil
}

const taskColumns = `id, goal_id, title, type, params, state, step_index, retries,
	max_retries, backoff_until, last_error, verification_status, expected,
	metadata, created_at, updated_at, version`

func (s *SQLStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var params, meta, state, verification string
	var expected sql.NullString
	var backoff sql.NullInt64
	var created, updated int64

	err := row.Scan(&t.ID, &t.GoalID, &t.Title, &t.Type, &params, &state,
		&t.StepIndex, &t.Retries, &t.MaxRetries, &backoff, &t.LastError,
		&verification, &expected, &meta, &created, &updated, &t.Version)
	if err != nil {
		return nil, err
	}

	t.State = TaskState(state)
	t.Verification = VerificationStatus(verification)
	if backoff.Valid {
		ts := time.UnixMilli(backoff.Int64)
		t.BackoffUntil = &ts
	}
	if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
		return nil, fmt.Errorf("unmarshal task %s params: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal task %s metadata: %w", t.ID, err)
	}
	if expected.Valid {
		if err := json.Unmarshal([]byte(expected.String), &t.Expected); err != nil {
			return nil, fmt.Errorf("unmarshal task %s expectation: %w", t.ID, err)
		}
	}
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)
	return &t, nil
}

func (s *SQLStore) UpdateTask(ctx context.Context, t *Task) error {
	params, err := marshalJSON(t.Params)
	if err != nil {
		return fmt.Errorf("marshal task params: %w", err)
	}
	meta, err := marshalJSON(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal task metadata: %w", err)
	}
	var expected sql.NullString
	if t.Expected != nil {
		data, err := json.Marshal(t.Expected)
		if err != nil {
			return fmt.Errorf("marshal task expectation: %w", err)
		}
		expected = sql.NullString{String: string(data), Valid: true}
	}

	updated := s.now()
	res, err := s.db.ExecContext(ctx, `
UPDATE tasks SET goal_id = ?, title = ?, type = ?, params = ?, state = ?,
	step_index = ?, retries = ?, max_retries = ?, backoff_until = ?,
	last_error = ?, verification_status = ?, expected = ?, metadata = ?,
	updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		t.GoalID, t.Title, t.Type, params, string(t.State), t.StepIndex,
		t.Retries, t.MaxRetries, nullUnix(t.BackoffUntil), t.LastError,
		string(t.Verification), expected, meta, updated.UnixMilli(), t.ID, t.Version)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	if n == 0 {
		// Missing row and stale version are indistinguishable from the
		// update alone.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, t.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
			}
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}
		return fmt.Errorf("task %s: %w", t.ID, ErrVersionConflict)
	}

	t.Version++
	t.UpdatedAt = updated
	return nil
}

func (s *SQLStore) ListTasks(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if filter.GoalID != "" {
		q += ` AND goal_id = ?`
		args = append(args, filter.GoalID)
	}
	if filter.State != "" {
		q += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	q += ` ORDER BY updated_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryTasks(ctx, q, args...)
}

func (s *SQLStore) ListByGoal(ctx context.Context, goalID string, limit, offset int) ([]*Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE goal_id = ? ORDER BY step_index`
	args := []any{goalID}
	if limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		q += ` LIMIT -1 OFFSET ?`
		args = append(args, offset)
	}
	return s.queryTasks(ctx, q, args...)
}

func (s *SQLStore) ListReadyToRetry(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = defaultRetryBatch
	}
	return s.queryTasks(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE state = ? AND retries <= max_retries
	AND backoff_until IS NOT NULL AND backoff_until <= ?
ORDER BY backoff_until
LIMIT ?`, string(TaskFailed), s.now().UnixMilli(), limit)
}

func (s *SQLStore) queryTasks(ctx context.Context, q string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateGoal(ctx context.Context, g *Goal) error {
	if g.ID == "" {
		g.ID = GenerateGoalID()
	}
	if g.Status == "" {
		g.Status = GoalPending
	}
	now := s.now()
	g.CreatedAt = now
	g.UpdatedAt = now
	g.Version = 1

	taskIDs, err := json.Marshal(g.TaskIDs)
	if err != nil {
		return fmt.Errorf("marshal goal task ids: %w", err)
	}
	meta, err := marshalJSON(g.Metadata)
	if err != nil {
		return fmt.Errorf("marshal goal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO goals (id, title, status, task_ids, user_id, mission_id, metadata,
	created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Title, string(g.Status), string(taskIDs), g.UserID, g.MissionID,
		meta, now.UnixMilli(), now.UnixMilli(), g.Version)
	if err != nil {
		return fmt.Errorf("insert goal %s: %w", g.ID, err)
	}
	return nil
}

func (s *SQLStore) GetGoal(ctx context.Context, id string) (*Goal, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, status, task_ids, user_id, mission_id, metadata, created_at, updated_at, version
FROM goals WHERE id = ?`, id)

	var g Goal
	var status, taskIDs, meta string
	var created, updated int64
	err := row.Scan(&g.ID, &g.Title, &status, &taskIDs, &g.UserID, &g.MissionID,
		&meta, &created, &updated, &g.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get goal %s: %w", id, err)
	}

	g.Status = GoalStatus(status)
	if err := json.Unmarshal([]byte(taskIDs), &g.TaskIDs); err != nil {
		return nil, fmt.Errorf("unmarshal goal %s task ids: %w", id, err)
	}
	if err := json.Unmarshal([]byte(meta), &g.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal goal %s metadata: %w", id, err)
	}
	g.CreatedAt = time.UnixMilli(created)
	g.UpdatedAt = time.UnixMilli(updated)
	return &g, nil
}

// ListGoals returns every goal, most recently updated first.
func (s *SQLStore) ListGoals(ctx context.Context) ([]*Goal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM goals ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Goal, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetGoal(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *SQLStore) UpdateGoal(ctx context.Context, g *Goal) error {
	taskIDs, err := json.Marshal(g.TaskIDs)
	if err != nil {
		return fmt.Errorf("marshal goal task ids: %w", err)
	}
	meta, err := marshalJSON(g.Metadata)
	if err != nil {
		return fmt.Errorf("marshal goal metadata: %w", err)
	}

	updated := s.now()
	res, err := s.db.ExecContext(ctx, `
UPDATE goals SET title = ?, status = ?, task_ids = ?, user_id = ?,
	mission_id = ?, metadata = ?, updated_at = ?, version = version + 1
WHERE id = ? AND version = ?`,
		g.Title, string(g.Status), string(taskIDs), g.UserID, g.MissionID,
		meta, updated.UnixMilli(), g.ID, g.Version)
	if err != nil {
		return fmt.Errorf("update goal %s: %w", g.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal %s: %w", g.ID, err)
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM goals WHERE id = ?`, g.ID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("goal %s: %w", g.ID, ErrNotFound)
			}
			return fmt.Errorf("update goal %s: %w", g.ID, err)
		}
		return fmt.Errorf("goal %s: %w", g.ID, ErrVersionConflict)
	}

	g.Version++
	g.UpdatedAt = updated
	return nil
}

func nullUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

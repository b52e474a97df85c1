package events

import "time"

// TaskStartedPayload is published when a task transitions to running.
type TaskStartedPayload struct {
	TaskID    string `json:"task_id"`
	Title     string `json:"title"`
	StepIndex int    `json:"step_index"`
}

func (TaskStartedPayload) EventType() EventType { return EventTaskStarted }

// TaskCompletedPayload is published when a task reaches completed.
type TaskCompletedPayload struct {
	TaskID   string        `json:"task_id"`
	Title    string        `json:"title"`
	Duration time.Duration `json:"duration"`
}

func (TaskCompletedPayload) EventType() EventType { return EventTaskCompleted }

// TaskFailedPayload is published for every step failure, before retry
// scheduling decides the task's fate.
type TaskFailedPayload struct {
	TaskID  string `json:"task_id"`
	Title   string `json:"title"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

func (TaskFailedPayload) EventType() EventType { return EventTaskFailed }

// TaskRetryScheduledPayload is published when a failed task is parked until
// its backoff deadline.
type TaskRetryScheduledPayload struct {
	TaskID  string    `json:"task_id"`
	Retries int       `json:"retries"`
	RetryAt time.Time `json:"retry_at"`
}

func (TaskRetryScheduledPayload) EventType() EventType { return EventTaskRetryScheduled }

// TaskExhaustedPayload is published exactly once, when a task runs out of
// retries and becomes terminally failed.
type TaskExhaustedPayload struct {
	TaskID  string `json:"task_id"`
	Retries int    `json:"retries"`
	Error   string `json:"error"`
}

func (TaskExhaustedPayload) EventType() EventType { return EventTaskExhausted }

// VerificationPayload records the outcome of a result verification check.
type VerificationPayload struct {
	TaskID   string   `json:"task_id"`
	Verifier string   `json:"verifier,omitempty"`
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors,omitempty"`
}

func (VerificationPayload) EventType() EventType { return EventVerificationPassed }

// VerificationFailedPayload mirrors VerificationPayload for failed checks.
type VerificationFailedPayload VerificationPayload

func (VerificationFailedPayload) EventType() EventType { return EventVerificationFailed }

// VerificationSkippedPayload is published when no verifier is registered for
// a task's result. Skipping is an automatic pass.
type VerificationSkippedPayload struct {
	TaskID string `json:"task_id"`
	Tool   string `json:"tool,omitempty"`
}

func (VerificationSkippedPayload) EventType() EventType { return EventVerificationSkipped }

// GoalStartedPayload is published when a goal enters in_progress.
type GoalStartedPayload struct {
	GoalID string `json:"goal_id"`
	Title  string `json:"title"`
	Tasks  int    `json:"tasks"`
}

func (GoalStartedPayload) EventType() EventType { return EventGoalStarted }

// GoalCompletedPayload is published when every task has been processed.
type GoalCompletedPayload struct {
	GoalID string `json:"goal_id"`
	Title  string `json:"title"`
}

func (GoalCompletedPayload) EventType() EventType { return EventGoalCompleted }

// GoalFailedPayload is published when goal iteration aborts on an uncaught
// error.
type GoalFailedPayload struct {
	GoalID string `json:"goal_id"`
	Title  string `json:"title"`
	Error  string `json:"error"`
}

func (GoalFailedPayload) EventType() EventType { return EventGoalFailed }

// MissionProgressPayload is published by the checkpoint tracker after a step
// is merged into a mission's progress sets.
type MissionProgressPayload struct {
	UserID    string `json:"user_id"`
	MissionID string `json:"mission_id"`
	Step      int    `json:"step"`
	Completed bool   `json:"completed"`
}

func (MissionProgressPayload) EventType() EventType { return EventMissionProgress }

// MissionFinalizedPayload is published when a mission checkpoint becomes
// terminal.
type MissionFinalizedPayload struct {
	UserID    string `json:"user_id"`
	MissionID string `json:"mission_id"`
	Status    string `json:"status"`
}

func (MissionFinalizedPayload) EventType() EventType { return EventMissionFinalized }

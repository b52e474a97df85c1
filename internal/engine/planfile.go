package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/nestor-assistant/nestor/internal/verify"
)

// Plan is a declarative goal definition loaded from a JSONC file: a title
// plus an ordered list of steps. Installing a plan creates the goal and one
// task per step.
type Plan struct {
	Title     string `json:"title"`
	UserID    string `json:"user_id,omitempty"`
	MissionID string `json:"mission_id,omitempty"`

	// MaxRetries is the default retry budget for steps that do not set
	// their own.
	MaxRetries int `json:"max_retries,omitempty"`

	Steps    []PlanStep     `json:"steps"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// PlanStep describes one unit of work in a plan.
type PlanStep struct {
	Title      string              `json:"title"`
	Type       string              `json:"type,omitempty"`
	Params     map[string]any      `json:"params,omitempty"`
	Expected   *verify.Expectation `json:"expected,omitempty"`
	MaxRetries *int                `json:"max_retries,omitempty"`
}

// LoadPlan reads a JSONC plan definition from disk.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}

	var p Plan
	if err := json.Unmarshal(std, &p); err != nil {
		return nil, fmt.Errorf("parse plan %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return &p, nil
}

// ApplyDefaultRetries sets the plan-level retry budget when the file did
// not specify one. Step-level budgets still win over the plan level.
func (p *Plan) ApplyDefaultRetries(n int) {
	if p.MaxRetries == 0 {
		p.MaxRetries = n
	}
}

// Validate checks the plan is installable.
func (p *Plan) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("plan has no title")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, s := range p.Steps {
		if s.Title == "" {
			return fmt.Errorf("step %d has no title", i)
		}
	}
	return nil
}

// Install creates the plan's goal and tasks in the store and returns the
// goal, ready for ExecuteGoal. Step order becomes task step index.
func (p *Plan) Install(ctx context.Context, store Store) (*Goal, error) {
	g := &Goal{
		ID:        GenerateGoalID(),
		Title:     p.Title,
		UserID:    p.UserID,
		MissionID: p.MissionID,
		Metadata:  p.Metadata,
	}

	for i, s := range p.Steps {
		retries := p.MaxRetries
		if s.MaxRetries != nil {
			retries = *s.MaxRetries
		}
		t := &Task{
			GoalID:     g.ID,
			Title:      s.Title,
			Type:       s.Type,
			Params:     s.Params,
			StepIndex:  i,
			MaxRetries: retries,
			Expected:   s.Expected,
		}
		if err := store.CreateTask(ctx, t); err != nil {
			return nil, fmt.Errorf("create task for step %d: %w", i, err)
		}
		g.TaskIDs = append(g.TaskIDs, t.ID)
	}

	if err := store.CreateGoal(ctx, g); err != nil {
		return nil, fmt.Errorf("create goal: %w", err)
	}
	return g, nil
}

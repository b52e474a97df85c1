// Package steps provides the built-in step runners and the type-keyed mux
// that routes a task to the runner matching its type.
package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nestor-assistant/nestor/internal/engine"
)

// Mux routes tasks to runners by task type. It satisfies engine.StepRunner.
type Mux struct {
	mu      sync.RWMutex
	runners map[string]engine.StepRunner
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{runners: make(map[string]engine.StepRunner)}
}

// Register binds a runner to a task type. Registering the same type twice
// is an error.
func (m *Mux) Register(taskType string, r engine.StepRunner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runners[taskType]; exists {
		return fmt.Errorf("step runner %q already registered", taskType)
	}
	m.runners[taskType] = r
	return nil
}

// Types returns the registered task types.
func (m *Mux) Types() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.runners))
	for t := range m.runners {
		out = append(out, t)
	}
	return out
}

func (m *Mux) RunStep(ctx context.Context, t *engine.Task) (*engine.StepResult, error) {
	m.mu.RLock()
	r, ok := m.runners[t.Type]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no step runner for task type %q", t.Type)
	}
	return r.RunStep(ctx, t)
}

// Noop does nothing and succeeds. Useful for plan steps that only exist to
// anchor mission checkpoints, and in tests.
type Noop struct{}

func (Noop) RunStep(context.Context, *engine.Task) (*engine.StepResult, error) {
	return &engine.StepResult{}, nil
}

// RegisterDefaults registers the built-in runners under their conventional
// types. cmdTimeout bounds command steps; zero means the runner's default.
func RegisterDefaults(m *Mux, cmdTimeout time.Duration) error {
	if err := m.Register("noop", Noop{}); err != nil {
		return err
	}
	if err := m.Register("command", NewCommandRunner(cmdTimeout)); err != nil {
		return err
	}
	if err := m.Register("http", NewHTTPRunner(nil)); err != nil {
		return err
	}
	return nil
}

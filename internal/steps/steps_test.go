package steps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nestor-assistant/nestor/internal/engine"
)

func TestMuxRouting(t *testing.T) {
	m := NewMux()
	if err := m.Register("noop", Noop{}); err != nil {
		t.Fatal(err)
	}

	res, err := m.RunStep(context.Background(), &engine.Task{ID: "task_1", Type: "noop"})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil {
		t.Fatal("nil result from noop")
	}

	if _, err := m.RunStep(context.Background(), &engine.Task{ID: "task_2", Type: "unknown"}); err == nil {
		t.Error("expected error for unregistered type")
	}
}

func TestMuxDuplicateRegistration(t *testing.T) {
	m := NewMux()
	if err := m.Register("noop", Noop{}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("noop", Noop{}); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestRegisterDefaults(t *testing.T) {
	m := NewMux()
	if err := RegisterDefaults(m, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	types := m.Types()
	if len(types) != 3 {
		t.Errorf("got %d default runners: %v", len(types), types)
	}

	cmd, ok := m.runners["command"].(*CommandRunner)
	if !ok {
		t.Fatal("command runner not registered")
	}
	if cmd.timeout != 5*time.Second {
		t.Errorf("command timeout = %v, want 5s", cmd.timeout)
	}
}

func TestCommandRunner(t *testing.T) {
	r := NewCommandRunner(0)
	task := &engine.Task{
		ID:     "task_cmd",
		Type:   "command",
		Params: map[string]any{"command": "echo hello"},
	}

	res, err := r.RunStep(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Output["stdout"].(string); strings.TrimSpace(got) != "hello" {
		t.Errorf("stdout = %q", got)
	}
	if res.Output["exit_code"] != 0 {
		t.Errorf("exit_code = %v", res.Output["exit_code"])
	}
}

func TestCommandRunnerFailure(t *testing.T) {
	r := NewCommandRunner(0)
	task := &engine.Task{
		ID:     "task_cmd",
		Type:   "command",
		Params: map[string]any{"command": "exit 3"},
	}

	if _, err := r.RunStep(context.Background(), task); err == nil {
		t.Error("expected error for non-zero exit")
	}
}

func TestCommandRunnerMissingParam(t *testing.T) {
	r := NewCommandRunner(0)
	if _, err := r.RunStep(context.Background(), &engine.Task{ID: "task_cmd"}); err == nil {
		t.Error("expected error for missing command param")
	}
}

func TestHTTPRunner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Check") != "yes" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.Client())
	task := &engine.Task{
		ID:   "task_http",
		Type: "http",
		Params: map[string]any{
			"url":     srv.URL,
			"headers": map[string]any{"X-Check": "yes"},
		},
	}

	res, err := r.RunStep(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output["status"] != 200 {
		t.Errorf("status = %v", res.Output["status"])
	}
	if !strings.Contains(res.Output["body"].(string), `"ok":true`) {
		t.Errorf("body = %q", res.Output["body"])
	}
}

func TestHTTPRunnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewHTTPRunner(srv.Client())
	task := &engine.Task{
		ID:     "task_http",
		Type:   "http",
		Params: map[string]any{"url": srv.URL},
	}

	if _, err := r.RunStep(context.Background(), task); err == nil {
		t.Error("expected error for 500 response")
	}
}

package verify

import (
	"context"
	"testing"
)

func TestExact(t *testing.T) {
	ctx := context.Background()

	res, err := Exact{}.Verify(ctx, map[string]any{"status": "ok", "count": 2},
		&Expectation{Value: map[string]any{"status": "ok", "count": 2}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Passed {
		t.Errorf("expected pass, got errors %v", res.Errors)
	}

	res, err = Exact{}.Verify(ctx, map[string]any{"status": "ok"},
		&Expectation{Value: map[string]any{"status": "error"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Passed {
		t.Error("expected mismatch to fail")
	}

	if _, err := (Exact{}).Verify(ctx, nil, nil); err == nil {
		t.Error("expected error without expected value")
	}
}

func TestExact_NumericNormalization(t *testing.T) {
	// JSON decoding turns ints into float64; both sides must compare as
	// documents.
	res, err := Exact{}.Verify(context.Background(),
		map[string]any{"count": float64(2)},
		&Expectation{Value: map[string]any{"count": 2}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Passed {
		t.Errorf("expected pass across numeric representations, got %v", res.Errors)
	}
}

func TestFields(t *testing.T) {
	ctx := context.Background()
	result := map[string]any{"status": "ok", "count": 2, "extra": true}

	res, err := Fields{}.Verify(ctx, result, &Expectation{Value: map[string]any{"status": "ok"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Passed {
		t.Errorf("expected pass with extra fields allowed, got %v", res.Errors)
	}

	res, err = Fields{}.Verify(ctx, result, &Expectation{Value: map[string]any{
		"status":  "error",
		"missing": 1,
	}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Passed {
		t.Error("expected failure")
	}
	if len(res.Errors) != 2 {
		t.Errorf("expected 2 errors, got %v", res.Errors)
	}
}

func TestContains(t *testing.T) {
	ctx := context.Background()
	result := map[string]any{"output": "deployment finished without errors"}

	res, err := Contains{}.Verify(ctx, result, &Expectation{Criteria: []string{"finished", "without errors"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.Passed {
		t.Errorf("expected pass, got %v", res.Errors)
	}

	res, err = Contains{}.Verify(ctx, result, &Expectation{Criteria: []string{"rollback"}})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.Passed {
		t.Error("expected missing substring to fail")
	}
}

package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// RegisterBuiltins adds the structural verifiers under their generic types.
func RegisterBuiltins(r *Registry) {
	_ = r.RegisterGeneric("exact", Exact{})
	_ = r.RegisterGeneric("fields", Fields{})
	_ = r.RegisterGeneric("contains", Contains{})
}

// Exact requires the result document to deep-equal the expected value.
type Exact struct{}

func (Exact) Name() string { return "exact" }

func (Exact) Verify(_ context.Context, result map[string]any, expected *Expectation) (*Result, error) {
	if expected == nil || expected.Value == nil {
		return nil, fmt.Errorf("exact: no expected value")
	}
	if jsonEqual(result, expected.Value) {
		return &Result{Passed: true}, nil
	}
	return &Result{Errors: []string{"result does not match expected value"}}, nil
}

// Fields requires every expected field to be present in the result with an
// equal value. Extra result fields are allowed.
type Fields struct{}

func (Fields) Name() string { return "fields" }

func (Fields) Verify(_ context.Context, result map[string]any, expected *Expectation) (*Result, error) {
	if expected == nil || len(expected.Value) == 0 {
		return nil, fmt.Errorf("fields: no expected fields")
	}

	var errs []string
	for k, want := range expected.Value {
		got, ok := result[k]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing field %q", k))
			continue
		}
		if !jsonEqual(got, want) {
			errs = append(errs, fmt.Sprintf("field %q: got %v, want %v", k, got, want))
		}
	}
	return &Result{Passed: len(errs) == 0, Errors: errs}, nil
}

// Contains requires the result's "output" string to contain every criterion
// substring.
type Contains struct{}

func (Contains) Name() string { return "contains" }

func (Contains) Verify(_ context.Context, result map[string]any, expected *Expectation) (*Result, error) {
	if expected == nil || len(expected.Criteria) == 0 {
		return nil, fmt.Errorf("contains: no criteria")
	}

	output, _ := result["output"].(string)
	var errs []string
	for _, c := range expected.Criteria {
		if !strings.Contains(output, c) {
			errs = append(errs, fmt.Sprintf("output does not contain %q", c))
		}
	}
	return &Result{Passed: len(errs) == 0, Errors: errs}, nil
}

// jsonEqual compares two values after a JSON round trip, so map[string]int
// and map[string]any with float64 values compare as documents, not as Go
// types.
func jsonEqual(a, b any) bool {
	na, err := jsonNormalize(a)
	if err != nil {
		return false
	}
	nb, err := jsonNormalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func jsonNormalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

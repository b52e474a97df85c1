// Package verify provides pluggable result verification for executed task
// steps. Verifiers are additive infrastructure: the absence of a verifier for
// a given tool never blocks execution, it only reduces confidence.
package verify

import "context"

// Expectation describes what a task's result should look like. It travels
// with the task as an opaque payload; which fields matter depends on the
// verifier that ends up handling it.
type Expectation struct {
	// VerifierType selects a generic verifier when no tool-specific one is
	// registered ("exact", "fields", "contains", "llm", ...).
	VerifierType string `json:"verifier_type,omitempty"`

	// Value holds structural expectations (expected fields or the full
	// expected document).
	Value map[string]any `json:"value,omitempty"`

	// Criteria holds free-form acceptance criteria, used by the contains and
	// LLM verifiers.
	Criteria []string `json:"criteria,omitempty"`
}

// Result is the outcome of a verification check.
type Result struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

// Verifier checks a step result against an expectation.
type Verifier interface {
	// Name identifies the verifier in events and logs.
	Name() string

	// Verify returns the check outcome. A non-nil error means the check
	// itself could not run, not that it failed.
	Verify(ctx context.Context, result map[string]any, expected *Expectation) (*Result, error)
}

package verify

import (
	"fmt"
	"sync"
)

// Match reports how a verifier was selected.
type Match int

const (
	// MatchNone means no verifier applies; the check is skipped and counts
	// as a pass.
	MatchNone Match = iota
	// MatchGeneric means a verifier was found via the expectation's
	// verifier type.
	MatchGeneric
	// MatchTool means a verifier registered for the exact tool name was
	// found.
	MatchTool
)

// Registry holds verifiers keyed by tool name and by generic verifier type.
// Lookup prefers the tool-specific verifier. Registries are passed to the
// executor explicitly; there is no process-wide instance.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Verifier
	generic map[string]Verifier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Verifier),
		generic: make(map[string]Verifier),
	}
}

// RegisterTool binds a verifier to an exact tool name.
func (r *Registry) RegisterTool(tool string, v Verifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool]; exists {
		return fmt.Errorf("verifier for tool %q already registered", tool)
	}
	r.tools[tool] = v
	return nil
}

// RegisterGeneric binds a verifier to an expectation verifier type.
func (r *Registry) RegisterGeneric(verifierType string, v Verifier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.generic[verifierType]; exists {
		return fmt.Errorf("generic verifier %q already registered", verifierType)
	}
	r.generic[verifierType] = v
	return nil
}

// Lookup resolves the verifier for a tool name and expectation:
// tool-specific first, then generic by expected.VerifierType, then none.
func (r *Registry) Lookup(tool string, expected *Expectation) (Verifier, Match) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if tool != "" {
		if v, ok := r.tools[tool]; ok {
			return v, MatchTool
		}
	}
	if expected != nil && expected.VerifierType != "" {
		if v, ok := r.generic[expected.VerifierType]; ok {
			return v, MatchGeneric
		}
	}
	return nil, MatchNone
}

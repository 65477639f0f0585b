// Package component implements the process-wide Component Registry (§4.1).
// Definitions are immutable after registration and live for process
// lifetime; there is no reference counting and no teardown path.
package component

import (
	"encoding/json"
	"sync"

	"github.com/flowforge/orchestrator/internal/apierr"
	"github.com/flowforge/orchestrator/internal/model"
)

// Registry is a process-wide, thread-safe map from component id to its
// immutable definition. A Registry is typically constructed once during
// process initialization and registered with every Compiler and Runner
// that needs it, rather than accessed as a package-level global — this
// keeps two independently constructed Registries (e.g. in tests) from
// interfering with each other while still behaving like the single
// "process-wide" registry the spec describes within one process.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]model.ComponentDefinition
	// order preserves insertion order for List's stable iteration.
	order []string
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{defs: make(map[string]model.ComponentDefinition)}
}

// Register adds def to the registry. Returns a ValidationError-kinded
// *apierr.Error with message "DuplicateId" if def.ID is already present.
func (r *Registry) Register(def model.ComponentDefinition) error {
	if def.ID == "" {
		return apierr.New(apierr.KindValidation, "component definition missing id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.ID]; exists {
		return apierr.New(apierr.KindValidation, "DuplicateId").WithField("componentId", def.ID)
	}
	r.defs[def.ID] = def
	r.order = append(r.order, def.ID)
	return nil
}

// DecodeDefinition unmarshals a JSON-encoded model.ComponentDefinition,
// rejecting one that sets ExecuteFn-requiring fields no serialized format
// can carry (inline components are always registered from Go, never from
// disk).
func DecodeDefinition(raw []byte) (model.ComponentDefinition, error) {
	var def model.ComponentDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return model.ComponentDefinition{}, err
	}
	if def.Runner.Kind == model.RunnerInline {
		return model.ComponentDefinition{}, apierr.New(apierr.KindValidation, "inline components cannot be registered from a serialized definition").WithField("componentId", def.ID)
	}
	return def, nil
}

// Get returns the definition registered under id, or false if absent.
func (r *Registry) Get(id string) (model.ComponentDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns every registered definition in insertion order.
func (r *Registry) List() []model.ComponentDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ComponentDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

package suspend

import (
	"context"
	"fmt"
	"sync"
)

// Registry holds the installed suspend conditions. One registry is created
// at engine startup and shared by every alignment session for its lifetime;
// conditions persist across sessions. Construction and teardown are
// explicit, there is no ambient global registry.
type Registry struct {
	mu    sync.RWMutex
	conds []Condition
}

// NewRegistry creates an empty condition registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Install registers a condition. Conditions implementing Installer get their
// Install hook called first; a hook error rejects the registration.
func (r *Registry) Install(c Condition) error {
	if c == nil {
		return fmt.Errorf("nil condition")
	}
	if ins, ok := c.(Installer); ok {
		if err := ins.Install(r); err != nil {
			return fmt.Errorf("install %s: %w", c.Name(), err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.conds {
		if existing.Name() == c.Name() {
			return fmt.Errorf("condition %s already installed", c.Name())
		}
	}
	r.conds = append(r.conds, c)
	return nil
}

// Remove unregisters the named condition.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.conds {
		if c.Name() == name {
			r.conds = append(r.conds[:i], r.conds[i+1:]...)
			return true
		}
	}
	return false
}

// Names lists the installed condition names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.conds))
	for i, c := range r.conds {
		names[i] = c.Name()
	}
	return names
}

// Check evaluates every installed condition and returns the names of those
// in violation. Evaluation is read-only and safe to call concurrently from
// multiple sessions. An evaluation error is reported alongside the
// violations collected so far; the erroring condition counts as violated.
func (r *Registry) Check(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	conds := make([]Condition, len(r.conds))
	copy(conds, r.conds)
	r.mu.RUnlock()

	var violated []string
	for _, c := range conds {
		ok, err := c.Evaluate(ctx)
		if err != nil {
			violated = append(violated, c.Name())
			return violated, fmt.Errorf("evaluate %s: %w", c.Name(), err)
		}
		if !ok {
			violated = append(violated, c.Name())
		}
	}
	return violated, nil
}

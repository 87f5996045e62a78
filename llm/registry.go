package llm

import (
	"errors"
	"slices"
	"sync"
)

// ModelRegistry is a validated allow-list of model identifiers together with
// the current selection. Each session owns one; the list itself is immutable.
type ModelRegistry struct {
	mu      sync.RWMutex
	models  []string
	current string
}

// NewModelRegistry creates a registry over models. The first entry is the
// default selection. Duplicates and empty identifiers are dropped.
func NewModelRegistry(models []string) (*ModelRegistry, error) {
	clean := make([]string, 0, len(models))
	for _, m := range models {
		if m == "" || slices.Contains(clean, m) {
			continue
		}
		clean = append(clean, m)
	}
	if len(clean) == 0 {
		return nil, errors.New("model allow-list is empty")
	}
	return &ModelRegistry{models: clean, current: clean[0]}, nil
}

// Clone returns a registry over the same allow-list, reset to the default selection.
func (r *ModelRegistry) Clone() *ModelRegistry {
	return &ModelRegistry{models: r.models, current: r.models[0]}
}

// List returns the allow-list in order.
func (r *ModelRegistry) List() []string {
	return slices.Clone(r.models)
}

// Contains reports whether id is allowed.
func (r *ModelRegistry) Contains(id string) bool {
	return slices.Contains(r.models, id)
}

// SetCurrent selects id if it is allowed and reports whether it was accepted.
// An unknown id leaves the selection unchanged.
func (r *ModelRegistry) SetCurrent(id string) bool {
	if !r.Contains(id) {
		return false
	}
	r.mu.Lock()
	r.current = id
	r.mu.Unlock()
	return true
}

// Current returns the selected model.
func (r *ModelRegistry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

package persona

import "sync"

// Registry is a catalog plus the current selection. Each session owns one;
// the catalog underneath is shared.
type Registry struct {
	catalog *Catalog

	mu      sync.RWMutex
	current string
}

// NewRegistry creates a registry selecting the catalog default.
func NewRegistry(catalog *Catalog) *Registry {
	return &Registry{catalog: catalog, current: catalog.Default()}
}

// List returns every persona without its system prompt.
func (r *Registry) List() []Info {
	return r.catalog.List()
}

// SetCurrent selects id and reports whether it exists in the catalog.
// Unknown ids leave the selection unchanged.
func (r *Registry) SetCurrent(id string) bool {
	if !r.catalog.Contains(id) {
		return false
	}
	r.mu.Lock()
	r.current = id
	r.mu.Unlock()
	return true
}

// Current returns the selected persona id.
func (r *Registry) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// SystemPrompt returns the prompt of the selected persona.
func (r *Registry) SystemPrompt() string {
	p, _ := r.catalog.Get(r.Current())
	return p.SystemPrompt
}

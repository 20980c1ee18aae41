// internal/models/registry.go
package models

import "sort"

// Info describes one known model identifier
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Registry is the allow-list of model identifiers a branch may target.
// It is an explicit value threaded through config validation, not a
// process-wide global, so tests can substitute their own.
type Registry struct {
	models    map[string]Info
	order     []string
	defaultID string
}

// NewRegistry returns a registry preloaded with the builtin models
func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]Info)}
	for _, info := range builtinModels() {
		r.add(info)
	}
	r.defaultID = "claude-sonnet-4-20250514"
	return r
}

// builtinModels returns the known model identifiers, current generation
// first, then the older aliases still present in recorded conversations
func builtinModels() []Info {
	return []Info{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", Description: "Fast and capable, recommended default"},
		{ID: "claude-haiku-4-20250514", Name: "Claude Haiku 4", Description: "Fastest model for simple branches"},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", Description: "Most capable flagship model"},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet"},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku"},
		{ID: "claude-3-opus-20240229", Name: "Claude 3 Opus"},
	}
}

func (r *Registry) add(info Info) {
	if _, exists := r.models[info.ID]; !exists {
		r.order = append(r.order, info.ID)
	}
	r.models[info.ID] = info
}

// Add registers an extra model identifier (e.g. from local configuration)
func (r *Registry) Add(info Info) {
	r.add(info)
}

// IsKnown reports whether a model identifier is in the allow-list
func (r *Registry) IsKnown(id string) bool {
	_, ok := r.models[id]
	return ok
}

// Get returns the info for a model identifier
func (r *Registry) Get(id string) (Info, bool) {
	info, ok := r.models[id]
	return info, ok
}

// Default returns the default model identifier
func (r *Registry) Default() string {
	return r.defaultID
}

// All returns every known model in registration order
func (r *Registry) All() []Info {
	out := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// IDs returns the sorted identifier list, used in validation messages
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.models))
	for id := range r.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

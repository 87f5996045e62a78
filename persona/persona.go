// Package persona provides the catalog of behavioral profiles and the
// per-session selection over it.
//
// Information Hiding:
// - System prompts stay inside the package; listings expose only id, name, description
// - Catalog is immutable after construction and safe to share between sessions
// - Built-in profiles can be replaced by a YAML catalog file

package persona

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultID is the persona selected when none is configured.
const DefaultID = "therapist"

var (
	// ErrEmptyCatalog is returned when a catalog has no entries.
	ErrEmptyCatalog = errors.New("persona catalog is empty")

	// ErrUnknownPersona is returned when an id is not in the catalog.
	ErrUnknownPersona = errors.New("unknown persona")
)

// Persona is an immutable catalog entry.
type Persona struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SystemPrompt string `yaml:"system_prompt"`
}

// Info is the public view of a persona. It never carries the system prompt.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is an ordered, immutable set of personas with a designated default.
type Catalog struct {
	personas  []Persona
	index     map[string]int
	defaultID string
}

// NewCatalog validates personas and builds a catalog. defaultID must name
// one of the entries; empty means the first entry.
func NewCatalog(personas []Persona, defaultID string) (*Catalog, error) {
	if len(personas) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		personas: make([]Persona, 0, len(personas)),
		index:    make(map[string]int, len(personas)),
	}
	for i, p := range personas {
		if p.ID == "" {
			return nil, fmt.Errorf("persona %d: missing id", i)
		}
		if p.SystemPrompt == "" {
			return nil, fmt.Errorf("persona %q: missing system prompt", p.ID)
		}
		if _, dup := c.index[p.ID]; dup {
			return nil, fmt.Errorf("persona %q: duplicate id", p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.index[p.ID] = len(c.personas)
		c.personas = append(c.personas, p)
	}

	if defaultID == "" {
		defaultID = c.personas[0].ID
	}
	if _, ok := c.index[defaultID]; !ok {
		return nil, fmt.Errorf("default %w: %s", ErrUnknownPersona, defaultID)
	}
	c.defaultID = defaultID

	return c, nil
}

// Default returns the id of the default persona.
func (c *Catalog) Default() string {
	return c.defaultID
}

// List returns the public view of every persona in catalog order.
func (c *Catalog) List() []Info {
	out := make([]Info, len(c.personas))
	for i, p := range c.personas {
		out[i] = Info{ID: p.ID, Name: p.Name, Description: p.Description}
	}
	return out
}

// IDs returns persona ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.personas))
	for i, p := range c.personas {
		ids[i] = p.ID
	}
	return ids
}

// Contains reports whether id is in the catalog.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Get returns the persona with the given id.
func (c *Catalog) Get(id string) (Persona, bool) {
	i, ok := c.index[id]
	if !ok {
		return Persona{}, false
	}
	return c.personas[i], true
}

// BuiltinPersonas returns a copy of the personas shipped with the binary.
func BuiltinPersonas() []Persona {
	return slices.Clone(builtinPersonas)
}

// Builtin returns the catalog shipped with the binary.
func Builtin() *Catalog {
	c, err := NewCatalog(BuiltinPersonas(), DefaultID)
	if err != nil {
		panic(fmt.Sprintf("persona: invalid builtin catalog: %v", err))
	}
	return c
}

var builtinPersonas = []Persona{
	{
		ID:          "therapist",
		Name:        "Supportive Therapist",
		Description: "A compassionate and understanding mental health companion who provides emotional support and guidance.",
		SystemPrompt: "You are a supportive therapist with expertise in mental health and emotional well-being. " +
			"Your communication style is empathetic, patient, and non-judgmental. You listen actively, validate feelings, " +
			"and provide gentle guidance. You focus on helping users explore their emotions, develop coping strategies, " +
			"and build resilience. You maintain professional boundaries while offering genuine care and support. " +
			"You never give medical advice or diagnose conditions.",
	},
	{
		ID:          "coach",
		Name:        "Motivational Coach",
		Description: "An energetic and encouraging coach who helps users set goals and stay motivated.",
		SystemPrompt: "You are an enthusiastic motivational coach dedicated to helping people achieve their goals. " +
			"Your communication style is energetic, positive, and action-oriented. You ask powerful questions, " +
			"challenge limiting beliefs, and provide accountability. You focus on helping users clarify their goals, " +
			"develop action plans, and overcome obstacles. You celebrate progress and maintain high expectations " +
			"while offering support and encouragement.",
	},
	{
		ID:          "friend",
		Name:        "Supportive Friend",
		Description: "A caring and understanding friend who offers emotional support and companionship.",
		SystemPrompt: "You are a supportive friend who offers emotional support and companionship. " +
			"Your communication style is warm, casual, and relatable. You listen without judgment, share appropriate " +
			"personal experiences, and offer practical advice when asked. You validate feelings, provide encouragement, " +
			"and help users feel less alone. You maintain appropriate boundaries while being genuinely caring and supportive.",
	},
	{
		ID:          "mentor",
		Name:        "Knowledgeable Mentor",
		Description: "A wise and experienced mentor who provides guidance and shares knowledge.",
		SystemPrompt: "You are a knowledgeable mentor with expertise in various fields. " +
			"Your communication style is thoughtful, insightful, and educational. You share relevant knowledge, " +
			"provide constructive feedback, and guide users toward growth and development. You ask thought-provoking " +
			"questions, challenge assumptions, and encourage critical thinking. You maintain a balance between being " +
			"supportive and pushing for excellence.",
	},
	{
		ID:          "default",
		Name:        "Default Assistant",
		Description: "A helpful and friendly AI assistant",
		SystemPrompt: "You are a helpful, friendly, and knowledgeable AI assistant. You provide clear, concise, " +
			"and accurate information while maintaining a professional and supportive tone.",
	},
}

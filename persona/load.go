package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk shape of a persona catalog:
//
//	default: therapist
//	personas:
//	  - id: therapist
//	    name: Supportive Therapist
//	    description: ...
//	    system_prompt: |
//	      You are ...
type catalogFile struct {
	Default  string    `yaml:"default"`
	Personas []Persona `yaml:"personas"`
}

// ParseCatalog decodes a YAML catalog. defaultID overrides the file's
// default when non-empty.
func ParseCatalog(data []byte, defaultID string) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse persona catalog: %w", err)
	}
	if defaultID == "" {
		defaultID = f.Default
	}
	return NewCatalog(f.Personas, defaultID)
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path, defaultID string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona catalog: %w", err)
	}
	c, err := ParseCatalog(data, defaultID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

package persona

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Store exposes persona retrieval for HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the preset list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

type presetFile struct {
	Personas []Persona `yaml:"personas"`
}

// LoadFile reads presets from a YAML file of the form
//
//	personas:
//	  - id: rich-klein
//	    name: Rich Klein
//	    instruction: |
//	      ...
//
// Entries override seeded presets with the same id; new ids are appended.
func LoadFile(path string, base []Persona) ([]Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}

	var file presetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse persona file %s: %w", path, err)
	}

	merged := append([]Persona(nil), base...)
	for i, p := range file.Personas {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("persona file %s: entry %d has no id", path, i)
		}
		p.Instruction = strings.TrimSpace(p.Instruction)

		replaced := false
		for j := range merged {
			if merged[j].ID == p.ID {
				merged[j] = p
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, p)
		}
	}
	return merged, nil
}

package catalog

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Overlay is the on-disk format for catalog additions and overrides.
type Overlay struct {
	Packages []Entry `yaml:"packages" validate:"required,min=1,dive"`
}

// ParseOverlay decodes and validates a YAML overlay document.
func ParseOverlay(data []byte) ([]Entry, error) {
	var ov Overlay
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ov); err != nil {
		return nil, fmt.Errorf("failed to parse catalog overlay: %w", err)
	}

	if err := validator.New().Struct(ov); err != nil {
		return nil, fmt.Errorf("invalid catalog overlay: %w", err)
	}

	seen := make(map[string]bool, len(ov.Packages))
	for _, e := range ov.Packages {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate catalog entry in overlay: %s", e.ID)
		}
		seen[e.ID] = true
	}

	return ov.Packages, nil
}

// LoadOverlay reads an overlay file and merges it over base.
func LoadOverlay(base *Catalog, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog overlay: %w", err)
	}

	entries, err := ParseOverlay(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return base.Merge(entries...)
}

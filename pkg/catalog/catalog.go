// Package catalog maps logical package identifiers to the native package
// names used by each supported package manager.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Manager identifies a native package manager.
type Manager string

const (
	// ManagerApt is the Debian/Ubuntu package manager.
	ManagerApt Manager = "apt"

	// ManagerPacman is the Arch Linux package manager.
	ManagerPacman Manager = "pacman"

	// ManagerApk is the Alpine Linux package manager.
	ManagerApk Manager = "apk"
)

// Managers returns all supported managers in detection order.
func Managers() []Manager {
	return []Manager{ManagerApt, ManagerPacman, ManagerApk}
}

// Validate checks if the manager is supported.
func (m Manager) Validate() error {
	switch m {
	case ManagerApt, ManagerPacman, ManagerApk:
		return nil
	default:
		return fmt.Errorf("invalid package manager: %s", m)
	}
}

// ParseManager converts a string to a Manager.
func ParseManager(s string) (Manager, error) {
	m := Manager(strings.ToLower(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// ErrNotFound is returned when a logical package id is not in the catalog.
var ErrNotFound = errors.New("package not found in catalog")

// Entry describes one logical package.
type Entry struct {
	// ID is the logical identifier, e.g. "pip".
	ID string `yaml:"id" json:"id" validate:"required"`

	// Description is a short human-readable description.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Names holds the native name per manager. A missing key means the
	// package is not available on that manager.
	Names map[Manager]string `yaml:"names" json:"names" validate:"required,min=1,dive,keys,oneof=apt pacman apk,endkeys,required"`
}

// Name returns the native name for the manager.
func (e Entry) Name(m Manager) (string, bool) {
	name, ok := e.Names[m]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Validate checks that the entry has an id and at least one native name.
func (e Entry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("catalog entry id is required")
	}
	named := 0
	for m, name := range e.Names {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("catalog entry %s: %w", e.ID, err)
		}
		if name != "" {
			named++
		}
	}
	if named == 0 {
		return fmt.Errorf("catalog entry %s: at least one manager name is required", e.ID)
	}
	return nil
}

func (e Entry) clone() Entry {
	names := make(map[Manager]string, len(e.Names))
	for m, n := range e.Names {
		names[m] = n
	}
	e.Names = names
	return e
}

// Catalog is an immutable lookup table of logical packages.
type Catalog struct {
	entries map[string]Entry
}

// New builds a catalog from entries. Duplicate ids and entries without any
// native name are rejected.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.entries[e.ID]; exists {
			return nil, fmt.Errorf("duplicate catalog entry: %s", e.ID)
		}
		c.entries[e.ID] = e.clone()
	}
	return c, nil
}

// Lookup returns the entry for id, or an error wrapping ErrNotFound.
func (c *Catalog) Lookup(id string) (Entry, error) {
	if c == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e, ok := c.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.clone(), nil
}

// NativeName returns the native name of id on manager. The boolean is false
// when the id is unknown or the manager has no name for it.
func (c *Catalog) NativeName(id string, m Manager) (string, bool) {
	e, err := c.Lookup(id)
	if err != nil {
		return "", false
	}
	return e.Name(m)
}

// Has reports whether id is in the catalog.
func (c *Catalog) Has(id string) bool {
	_, err := c.Lookup(id)
	return err == nil
}

// IDs returns all logical ids in sorted order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Entries returns all entries sorted by id.
func (c *Catalog) Entries() []Entry {
	ids := c.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.entries[id].clone())
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Merge returns a new catalog where overrides replace entries with the same
// id and new ids are added. The receiver is left untouched.
func (c *Catalog) Merge(overrides ...Entry) (*Catalog, error) {
	merged := make(map[string]Entry, c.Len()+len(overrides))
	for _, e := range c.Entries() {
		merged[e.ID] = e
	}
	for _, e := range overrides {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		merged[e.ID] = e.clone()
	}
	return &Catalog{entries: merged}, nil
}

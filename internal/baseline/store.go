package baseline

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a property id is not in the store.
var ErrNotFound = errors.New("property not found")

// Store is an immutable, in-memory baseline snapshot. It is safe for
// concurrent use because nothing writes to it after construction.
type Store struct {
	byID  map[string]*Property
	order []string
}

// NewStore builds a store from the given properties after validating them.
func NewStore(props []Property) (*Store, error) {
	s := &Store{byID: make(map[string]*Property, len(props))}
	for i := range props {
		p := props[i]
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate property id %s", p.ID)
		}
		s.byID[p.ID] = &p
		s.order = append(s.order, p.ID)
	}
	sort.Strings(s.order)
	return s, nil
}

// document is the on-disk layout of a baseline file.
type document struct {
	Properties []Property `yaml:"properties"`
}

// Load reads a baseline file. YAML and JSON are both accepted.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading baseline %s: %w", path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing baseline %s: %w", path, err)
	}

	return NewStore(doc.Properties)
}

// Get returns the property with the given id. The digital twin slices are
// shared with the store and must be treated as read-only.
func (s *Store) Get(id string) (Property, error) {
	p, ok := s.byID[id]
	if !ok {
		return Property{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *p, nil
}

// List returns all properties ordered by id.
func (s *Store) List() []Property {
	out := make([]Property, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Len returns the number of properties in the snapshot.
func (s *Store) Len() int {
	return len(s.order)
}

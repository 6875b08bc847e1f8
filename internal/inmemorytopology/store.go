// Package inmemorytopology provides a simple, thread-safe, in-memory
// implementation of the topologystore.Store interface.
package inmemorytopology

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/petrelgo/internal/topology"
	"github.com/specialistvlad/petrelgo/internal/topologystore"
)

// Store implements the topologystore.Store interface using maps and a mutex
// for thread-safe concurrent access.
type Store struct {
	mu         sync.RWMutex
	components map[string]topology.Component
	deps       map[string]map[string]struct{} // Key: subscriber, Value: set of upstream names
}

// New creates a new, empty in-memory topology store.
func New() topologystore.Store {
	return &Store{
		components: make(map[string]topology.Component),
		deps:       make(map[string]map[string]struct{}),
	}
}

// AddComponent adds a component to the store.
func (s *Store) AddComponent(ctx context.Context, c topology.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.components[c.Name]; exists {
		return nil
	}
	s.components[c.Name] = c
	return nil
}

// AddDependency records that downstream subscribes to upstream.
func (s *Store) AddDependency(ctx context.Context, upstream, downstream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.components[upstream]; !exists {
		return fmt.Errorf("input component '%s' not found in topology", upstream)
	}
	if _, exists := s.components[downstream]; !exists {
		return fmt.Errorf("subscribing component '%s' not found in topology", downstream)
	}

	if s.deps[downstream] == nil {
		s.deps[downstream] = make(map[string]struct{})
	}
	s.deps[downstream][upstream] = struct{}{}
	return nil
}

// GetComponent retrieves a single component by name.
func (s *Store) GetComponent(ctx context.Context, name string) (topology.Component, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.components[name]
	return c, ok
}

// AllComponents returns every component sorted by name.
func (s *Store) AllComponents(ctx context.Context) []topology.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comps := make([]topology.Component, 0, len(s.components))
	for _, c := range s.components {
		comps = append(comps, c)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
	return comps
}

// DependenciesOf returns the names of the components name subscribes to.
func (s *Store) DependenciesOf(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.components[name]; !exists {
		return nil, fmt.Errorf("component '%s' not found in topology", name)
	}

	deps := make([]string, 0, len(s.deps[name]))
	for up := range s.deps[name] {
		deps = append(deps, up)
	}
	sort.Strings(deps)
	return deps, nil
}

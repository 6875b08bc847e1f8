// Package topologystore defines the interface for indexing the components of
// a decoded topology and the subscriptions between them.
//
// The store is built once per local run from topology.Components and is
// read-only afterwards. The local cluster uses it to decide in which order
// component tasks are started: subscribers first, so no tuple emitted by an
// early spout is sent to a bolt that does not exist yet.
package topologystore

import (
	"context"
	"fmt"
	"sort"

	"github.com/specialistvlad/petrelgo/internal/topology"
)

// Store manages the static component graph of one topology.
//
// Implementations must be safe for concurrent reads and writes.
type Store interface {
	// AddComponent registers a component. Adding the same name twice keeps
	// the first registration and is not an error.
	AddComponent(ctx context.Context, c topology.Component) error

	// AddDependency records that downstream subscribes to upstream. Both
	// components must already be registered.
	AddDependency(ctx context.Context, upstream, downstream string) error

	// GetComponent retrieves a component by name.
	GetComponent(ctx context.Context, name string) (topology.Component, bool)

	// AllComponents returns every component, sorted by name.
	AllComponents(ctx context.Context) []topology.Component

	// DependenciesOf returns the sorted names of the components name
	// subscribes to. It errors if name is unknown.
	DependenciesOf(ctx context.Context, name string) ([]string, error)
}

// Populate registers every component of topo and its input subscriptions.
// An input naming an undeclared component is an error.
func Populate(ctx context.Context, s Store, topo *topology.Topology) error {
	comps := topo.Components()
	for _, c := range comps {
		if err := s.AddComponent(ctx, c); err != nil {
			return err
		}
	}
	for _, c := range comps {
		for _, in := range c.Inputs {
			if err := s.AddDependency(ctx, in.ComponentID, c.Name); err != nil {
				return fmt.Errorf("component %q: %w", c.Name, err)
			}
		}
	}
	return nil
}

// StartOrder lists component names so that every component comes after all
// of its subscribers. Components that take part in a subscription cycle are
// appended last, sorted by name.
func StartOrder(ctx context.Context, s Store) ([]string, error) {
	comps := s.AllComponents(ctx)

	// pending counts, per component, the subscribers not yet placed.
	pending := make(map[string]int, len(comps))
	upstreams := make(map[string][]string, len(comps))
	for _, c := range comps {
		pending[c.Name] += 0
		deps, err := s.DependenciesOf(ctx, c.Name)
		if err != nil {
			return nil, err
		}
		upstreams[c.Name] = deps
		for _, d := range deps {
			if d != c.Name {
				pending[d]++
			}
		}
	}

	var ready []string
	for _, c := range comps {
		if pending[c.Name] == 0 {
			ready = append(ready, c.Name)
		}
	}

	order := make([]string, 0, len(comps))
	placed := make(map[string]bool, len(comps))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		placed[name] = true
		for _, up := range upstreams[name] {
			if up == name {
				continue
			}
			pending[up]--
			if pending[up] == 0 {
				ready = append(ready, up)
			}
		}
	}

	for _, c := range comps {
		if !placed[c.Name] {
			order = append(order, c.Name)
		}
	}
	return order, nil
}

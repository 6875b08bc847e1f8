// Package session defines the interfaces for handing an assembled topology to
// a runtime. It abstracts away the details of local vs. remote execution.
package session

import (
	"context"

	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// RemoteSubmitter hands a topology to a cluster under a name. Submit returns
// once the cluster has accepted or rejected it.
type RemoteSubmitter interface {
	Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error
}

// LocalRunner starts a topology inside the current process.
type LocalRunner interface {
	Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) (Handle, error)
}

// Handle controls a running local topology.
type Handle interface {
	// Done is closed when the topology stops by itself.
	Done() <-chan struct{}
	// Err reports why the topology stopped. It is only meaningful after Done
	// is closed and is nil for a clean stop.
	Err() error
	// Shutdown stops the topology and releases its resources. It accepts a
	// context to bound the graceful cleanup.
	Shutdown(ctx context.Context) error
}

// RemoteFunc adapts a function to RemoteSubmitter.
type RemoteFunc func(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error

func (f RemoteFunc) Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error {
	return f(ctx, name, conf, topo)
}

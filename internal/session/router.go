package session

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// Router is a RemoteSubmitter that delegates to the submitter named by the
// petrel.submitter configuration key, or to its default when the key is unset.
type Router struct {
	submitters map[string]RemoteSubmitter
	fallback   string
}

// NewRouter returns a Router whose default submitter is fallback.
func NewRouter(fallback string) *Router {
	return &Router{submitters: make(map[string]RemoteSubmitter), fallback: fallback}
}

// Register adds a submitter under name, replacing any previous one.
func (r *Router) Register(name string, s RemoteSubmitter) *Router {
	r.submitters[name] = s
	return r
}

// Names returns the registered submitter names, sorted.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.submitters))
	for n := range r.submitters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Router) Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error {
	kind, ok := conf.String(stormconf.PetrelSubmitter)
	if !ok || kind == "" {
		kind = r.fallback
	}
	s, ok := r.submitters[kind]
	if !ok {
		return fmt.Errorf("unknown submitter %q (known: %s)", kind, strings.Join(r.Names(), ", "))
	}
	ctxlog.FromContext(ctx).Debug("Remote submitter selected.", "submitter", kind)
	return s.Submit(ctx, name, conf, topo)
}

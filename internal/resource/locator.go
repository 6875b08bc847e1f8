// Package resource resolves named launcher resources such as the serialized
// topology and its configuration documents.
//
// A Locator searches an ordered list of Providers and returns the first hit.
// Names are normalized the way bundle loaders disagree about them: a name
// with a leading "/" is retried without it, and a name that misses everywhere
// is retried once with a leading "/". A provider failing for any reason other
// than absence is logged and skipped; the search itself never errors except
// with ErrNotFound.
package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
)

// ErrNotFound is returned when no provider holds the requested resource.
var ErrNotFound = errors.New("resource not found")

// Provider is one source of resources.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Open returns the resource's content. A missing resource is reported
	// with an error matching fs.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Observer is notified of every provider lookup.
type Observer interface {
	ObserveLookup(provider string, hit bool)
}

// Handle is an open resource. The caller owns it and must Close it.
type Handle struct {
	io.ReadCloser
	// Name is the name the resource was found under.
	Name string
	// Provider is the name of the provider that served it.
	Provider string
}

// Locator searches providers in a fixed order.
type Locator struct {
	logger    *slog.Logger
	providers []Provider
	observer  Observer
}

// New returns a Locator searching providers in the order given.
func New(logger *slog.Logger, providers ...Provider) *Locator {
	return &Locator{logger: logger, providers: providers}
}

// WithObserver sets an observer for lookups and returns the locator.
func (l *Locator) WithObserver(o Observer) *Locator {
	l.observer = o
	return l
}

// Providers returns the provider names in search order.
func (l *Locator) Providers() []string {
	names := make([]string, len(l.providers))
	for i, p := range l.providers {
		names[i] = p.Name()
	}
	return names
}

// Locate returns the first provider's copy of name.
func (l *Locator) Locate(ctx context.Context, name string) (*Handle, error) {
	if h := l.locateOnce(ctx, name, true); h != nil {
		return h, nil
	}
	if !strings.HasPrefix(name, "/") {
		if h := l.locateOnce(ctx, "/"+name, false); h != nil {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (l *Locator) locateOnce(ctx context.Context, name string, stripSlash bool) *Handle {
	for _, p := range l.providers {
		if h := l.try(ctx, p, name, stripSlash); h != nil {
			return h
		}
	}
	return nil
}

// LocateAll returns every provider's copy of name in provider order. The
// caller must close every returned handle.
func (l *Locator) LocateAll(ctx context.Context, name string) ([]*Handle, error) {
	handles := l.locateAllOnce(ctx, name, true)
	if len(handles) == 0 && !strings.HasPrefix(name, "/") {
		handles = l.locateAllOnce(ctx, "/"+name, false)
	}
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return handles, nil
}

func (l *Locator) locateAllOnce(ctx context.Context, name string, stripSlash bool) []*Handle {
	var handles []*Handle
	for _, p := range l.providers {
		if h := l.try(ctx, p, name, stripSlash); h != nil {
			handles = append(handles, h)
		}
	}
	return handles
}

// try asks one provider for name, then, when stripSlash is set, for name
// without its leading "/". The pass that prepends "/" to a bare name leaves
// stripSlash unset since the bare form was already asked for.
func (l *Locator) try(ctx context.Context, p Provider, name string, stripSlash bool) *Handle {
	if h := l.open(ctx, p, name); h != nil {
		return h
	}
	if stripped, ok := strings.CutPrefix(name, "/"); ok && stripSlash {
		return l.open(ctx, p, stripped)
	}
	return nil
}

func (l *Locator) open(ctx context.Context, p Provider, name string) *Handle {
	rc, err := p.Open(ctx, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Resource provider failed, treating as a miss.", "provider", p.Name(), "resource", name, "error", err)
		}
		l.observe(p.Name(), false)
		return nil
	}
	l.logger.Debug("Resource found.", "provider", p.Name(), "resource", name)
	l.observe(p.Name(), true)
	return &Handle{ReadCloser: rc, Name: name, Provider: p.Name()}
}

func (l *Locator) observe(provider string, hit bool) {
	if l.observer != nil {
		l.observer.ObserveLookup(provider, hit)
	}
}

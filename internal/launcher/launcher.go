// Package launcher boots a packaged topology: it reads the serialized
// topology and its configuration documents from the resource bundle, merges
// the configuration layers, and either submits the result to a cluster or
// runs it in-process until interrupted.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/metrics"
	"github.com/specialistvlad/petrelgo/internal/recordio"
	"github.com/specialistvlad/petrelgo/internal/resource"
	"github.com/specialistvlad/petrelgo/internal/session"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// Bundle resource names.
const (
	TopologyResource        = "resources/topology.ser"
	BaseConfigResource      = "resources/__topology__.yaml"
	SubmitterConfigResource = "resources/__submitter__.yaml"
)

const (
	// LocalRunName is the name every in-process run is submitted under.
	LocalRunName = "test topology"

	DefaultLivenessInterval = 60 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
)

// Submission modes, as reported in SubmissionError and metrics.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// ErrResourceNotFound is returned when a mandatory bundle resource is absent.
var ErrResourceNotFound = errors.New("required resource not found")

// SubmissionError reports a runtime refusing or failing a topology.
type SubmissionError struct {
	Mode   string
	Target string
	Err    error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission of %q failed: %v", e.Mode, e.Target, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// overlay is an operator-supplied configuration document.
type overlay struct {
	locator *resource.Locator
	name    string
}

// Launcher runs the launch sequence against one resource bundle.
type Launcher struct {
	locator *resource.Locator
	remote  session.RemoteSubmitter
	local   session.LocalRunner

	overlays        []overlay
	liveness        time.Duration
	shutdownTimeout time.Duration
	metrics         *metrics.Metrics
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithOverlays merges the named documents, found through locator, after the
// submitter layer. Every provider's copy of a name is merged, with the first
// provider's copy applied last.
func WithOverlays(locator *resource.Locator, names ...string) Option {
	return func(l *Launcher) {
		for _, n := range names {
			l.overlays = append(l.overlays, overlay{locator: locator, name: n})
		}
	}
}

// WithLivenessInterval sets how often a local run reports that it is alive.
func WithLivenessInterval(d time.Duration) Option {
	return func(l *Launcher) { l.liveness = d }
}

// WithShutdownTimeout bounds the local runtime's teardown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(l *Launcher) { l.shutdownTimeout = d }
}

// WithMetrics counts submissions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Launcher) { l.metrics = m }
}

// New returns a Launcher reading its bundle through locator.
func New(locator *resource.Locator, remote session.RemoteSubmitter, local session.LocalRunner, opts ...Option) *Launcher {
	l := &Launcher{
		locator:         locator,
		remote:          remote,
		local:           local,
		liveness:        DefaultLivenessInterval,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch submits the bundled topology to the cluster under target, or runs it
// locally when target is empty. A local run lasts until ctx is cancelled, and
// an interrupted local run is a success.
func (l *Launcher) Launch(ctx context.Context, target string) error {
	logger := ctxlog.FromContext(ctx)

	topo, err := l.LoadTopology(ctx)
	if err != nil {
		return err
	}

	conf, err := l.Configure(ctx)
	if err != nil {
		return err
	}

	if target != "" {
		logger.Info("Submitting topology to cluster.", "target", target)
		return l.submitRemote(ctx, target, conf.Result(), topo)
	}

	conf.Add("local", stormconf.LocalOverrides())
	return l.runLocal(ctx, conf.Result(), topo)
}

// LoadTopology reads the single topology record of the bundle.
func (l *Launcher) LoadTopology(ctx context.Context) (*topology.Topology, error) {
	h, err := l.locate(ctx, TopologyResource)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	r := recordio.NewReader(h, topology.New)
	topo, err := r.Next(ctx)
	if errors.Is(err, recordio.ErrExhausted) {
		return nil, &recordio.DecodeError{Offset: 0, Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", h.Name, err)
	}
	more, err := r.HasNext()
	if err != nil {
		return nil, fmt.Errorf("read %s after topology record: %w", h.Name, err)
	}
	if more {
		ctxlog.FromContext(ctx).Warn("Ignoring trailing data after topology record.", "resource", h.Name, "offset", r.Offset())
	}

	ctxlog.FromContext(ctx).Info("Topology loaded.",
		"provider", h.Provider,
		"size", humanize.IBytes(uint64(r.Offset())),
		"components", len(topo.Components()),
	)
	return topo, nil
}

// Configure loads the base and submitter documents, then any overlays, into
// an Assembler in merge order.
func (l *Launcher) Configure(ctx context.Context) (*stormconf.Assembler, error) {
	logger := ctxlog.FromContext(ctx)
	var a stormconf.Assembler

	base, err := l.loadConfig(ctx, BaseConfigResource)
	if err != nil {
		return nil, err
	}
	a.Add("base", base)

	submitter, err := l.loadConfig(ctx, SubmitterConfigResource)
	if err != nil {
		return nil, err
	}
	a.Add("submitter", submitter)

	user, _ := submitter.String(stormconf.PetrelUser)
	host, _ := submitter.String(stormconf.PetrelHost)
	logger.Info("Submitter identity loaded.", "user", user, "host", host)

	for _, o := range l.overlays {
		if err := l.addOverlay(ctx, &a, o); err != nil {
			return nil, err
		}
	}

	logger.Debug("Configuration assembled.", "layers", a.Layers())
	return &a, nil
}

func (l *Launcher) addOverlay(ctx context.Context, a *stormconf.Assembler, o overlay) error {
	handles, err := o.locator.LocateAll(ctx, o.name)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrResourceNotFound, o.name, err)
		}
		return err
	}
	defer func() {
		for _, h := range handles {
			h.Close()
		}
	}()

	for i := len(handles) - 1; i >= 0; i-- {
		h := handles[i]
		m, err := stormconf.Load(h, stormconf.FormatFor(h.Name))
		if err != nil {
			return fmt.Errorf("load %s from %s: %w", h.Name, h.Provider, err)
		}
		a.Add("overlay:"+h.Name+"@"+h.Provider, m)
	}
	return nil
}

func (l *Launcher) loadConfig(ctx context.Context, name string) (*stormconf.Map, error) {
	h, err := l.locate(ctx, name)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	m, err := stormconf.Load(h, stormconf.FormatFor(h.Name))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", h.Name, err)
	}
	ctxlog.FromContext(ctx).Debug("Configuration document loaded.", "resource", h.Name, "provider", h.Provider, "keys", m.Len())
	return m, nil
}

func (l *Launcher) locate(ctx context.Context, name string) (*resource.Handle, error) {
	h, err := l.locator.Locate(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceNotFound, name, err)
	}
	return h, nil
}

func (l *Launcher) submitRemote(ctx context.Context, target string, conf *stormconf.Map, topo *topology.Topology) error {
	if l.remote == nil {
		return &SubmissionError{Mode: ModeRemote, Target: target, Err: errors.New("no remote submitter configured")}
	}
	err := l.remote.Submit(ctx, target, conf, topo)
	l.metrics.ObserveSubmission(ModeRemote, err)
	if err != nil {
		return &SubmissionError{Mode: ModeRemote, Target: target, Err: err}
	}
	return nil
}

func (l *Launcher) runLocal(ctx context.Context, conf *stormconf.Map, topo *topology.Topology) error {
	logger := ctxlog.FromContext(ctx)

	h, err := l.local.Submit(ctx, LocalRunName, conf, topo)
	l.metrics.ObserveSubmission(ModeLocal, err)
	if err != nil {
		return &SubmissionError{Mode: ModeLocal, Target: LocalRunName, Err: err}
	}

	ticker := time.NewTicker(l.liveness)
	defer ticker.Stop()

	for {
		logger.Info("Topology is running. Press ^C to stop it.")
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("Shutting down local topology")
			return l.shutdown(ctx, h)
		case <-h.Done():
			runErr := h.Err()
			if err := l.shutdown(ctx, h); err != nil {
				logger.Warn("Local topology teardown failed.", "error", err)
			}
			if runErr != nil {
				return &SubmissionError{Mode: ModeLocal, Target: LocalRunName, Err: runErr}
			}
			logger.Info("Local topology stopped.")
			return nil
		}
	}
}

// shutdown tears the local run down once, bounded by the shutdown timeout
// even when ctx is already cancelled.
func (l *Launcher) shutdown(ctx context.Context, h session.Handle) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.shutdownTimeout)
	defer cancel()
	if err := h.Shutdown(sctx); err != nil {
		return fmt.Errorf("shut down local topology: %w", err)
	}
	return nil
}

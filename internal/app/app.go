package app

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/specialistvlad/petrelgo/internal/gateway"
	"github.com/specialistvlad/petrelgo/internal/launcher"
	"github.com/specialistvlad/petrelgo/internal/localexecutor"
	"github.com/specialistvlad/petrelgo/internal/localsession"
	"github.com/specialistvlad/petrelgo/internal/metrics"
	"github.com/specialistvlad/petrelgo/internal/nimbus"
	"github.com/specialistvlad/petrelgo/internal/resource"
	"github.com/specialistvlad/petrelgo/internal/session"
)

// Submitter names accepted by the petrel.submitter key.
const (
	SubmitterNimbus  = "nimbus"
	SubmitterGateway = "gateway"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	config     *Config
	metrics    *metrics.Metrics
	launcher   *launcher.Launcher
	locator    *resource.Locator
	archive    *resource.ArchiveProvider
	httpServer *http.Server
	ctx        context.Context
}

// Option overrides a collaborator, mainly for tests.
type Option func(*deps)

type deps struct {
	remote session.RemoteSubmitter
	local  session.LocalRunner
}

// WithRemote replaces the remote submitter router.
func WithRemote(r session.RemoteSubmitter) Option {
	return func(d *deps) { d.remote = r }
}

// WithLocal replaces the local cluster.
func WithLocal(l session.LocalRunner) Option {
	return func(d *deps) { d.local = l }
}

// NewApp is the constructor for the main application. It wires the resource
// providers, submitters and local cluster. bundle is the launcher's embedded
// resource bundle and may be nil.
func NewApp(outW io.Writer, cfg *Config, bundle fs.FS, opts ...Option) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	m := metrics.New()
	a := &App{outW: outW, logger: logger, config: cfg, metrics: m}

	providers, err := a.providers(bundle)
	if err != nil {
		return nil, err
	}
	a.locator = resource.New(logger, providers...).WithObserver(m)
	logger.Debug("Resource providers configured.", "providers", a.locator.Providers())

	overlays := resource.New(logger,
		resource.NewDirProvider("cwd", "."),
		resource.NewDirProvider("root", "/"),
	).WithObserver(m)

	var gatewayOpts []gateway.Option
	if cfg.SubmitTimeout > 0 {
		gatewayOpts = append(gatewayOpts, gateway.WithTimeout(cfg.SubmitTimeout))
	}
	d := deps{
		remote: session.NewRouter(SubmitterNimbus).
			Register(SubmitterNimbus, nimbus.NewSubmitter(cfg.Jar, cfg.SubmitTimeout)).
			Register(SubmitterGateway, gateway.NewSubmitter(gatewayOpts...)),
		local: localsession.New(localexecutor.NewExecRunner(cfg.WorkDir), localsession.WithMetrics(m)),
	}
	for _, opt := range opts {
		opt(&d)
	}

	launchOpts := []launcher.Option{launcher.WithMetrics(m)}
	if len(cfg.Overlays) > 0 {
		launchOpts = append(launchOpts, launcher.WithOverlays(overlays, cfg.Overlays...))
	}
	if cfg.LivenessInterval > 0 {
		launchOpts = append(launchOpts, launcher.WithLivenessInterval(cfg.LivenessInterval))
	}
	if cfg.ShutdownTimeout > 0 {
		launchOpts = append(launchOpts, launcher.WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	a.launcher = launcher.New(a.locator, d.remote, d.local, launchOpts...)

	return a, nil
}

// providers lists the bundle sources in search order: the override
// directory, the embedded bundle, then the caller-supplied archive and
// object store.
func (a *App) providers(bundle fs.FS) ([]resource.Provider, error) {
	var providers []resource.Provider
	if a.config.ResourceDir != "" {
		providers = append(providers, resource.NewDirProvider("dir:"+a.config.ResourceDir, a.config.ResourceDir))
	}
	if bundle != nil {
		providers = append(providers, resource.NewFSProvider("embedded", bundle))
	}
	if a.config.Bundle != "" {
		a.archive = resource.NewArchiveProvider(a.config.Bundle)
		providers = append(providers, a.archive)
	}
	if a.config.ObjectStore.Endpoint != "" {
		p, err := resource.NewObjectStoreProvider(a.config.ObjectStore)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// Metrics returns the application's metrics. This is primarily for testing.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Close releases the bundle archive, if one was opened.
func (a *App) Close() error {
	if a.archive == nil {
		return nil
	}
	return a.archive.Close()
}

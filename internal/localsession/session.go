// Package localsession provides a concrete implementation of the
// session.LocalRunner interface: an in-process cluster that runs every
// component task of a topology on the local machine.
package localsession

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/inmemorytopology"
	"github.com/specialistvlad/petrelgo/internal/localexecutor"
	"github.com/specialistvlad/petrelgo/internal/metrics"
	"github.com/specialistvlad/petrelgo/internal/session"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
	"github.com/specialistvlad/petrelgo/internal/topologystore"
)

// Cluster implements session.LocalRunner.
type Cluster struct {
	runner  localexecutor.Runner
	metrics *metrics.Metrics
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithMetrics records task starts and exits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cluster) { c.metrics = m }
}

// New returns a cluster that runs tasks with runner.
func New(runner localexecutor.Runner, opts ...Option) *Cluster {
	c := &Cluster{runner: runner}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit starts every task of topo and returns at once. The tasks outlive
// ctx: they run until Shutdown or until one of them fails, which stops the
// rest.
func (c *Cluster) Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) (session.Handle, error) {
	logger := ctxlog.FromContext(ctx).With("topology", name)

	store := inmemorytopology.New()
	if err := topologystore.Populate(ctx, store, topo); err != nil {
		return nil, fmt.Errorf("index topology components: %w", err)
	}
	order, err := topologystore.StartOrder(ctx, store)
	if err != nil {
		return nil, err
	}

	maxParallelism, _ := conf.Int(stormconf.TopologyMaxTaskParallelism)
	debug, _ := conf.Bool(stormconf.TopologyDebug)

	// The run context keeps ctx's values, including the logger, but not its
	// cancellation.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctxlog.WithLogger(ctx, logger)))
	h := &handle{done: make(chan struct{}), cancel: cancel}

	// Task IDs are assigned in start order from 1, and every task learns the
	// full ID to component mapping.
	var tasks []localexecutor.Task
	taskComponents := make(map[int]string)
	taskConf := conf.ToMap()
	for _, compName := range order {
		comp, _ := store.GetComponent(ctx, compName)
		for i := range taskCount(comp.Parallelism, maxParallelism) {
			id := len(tasks) + 1
			taskComponents[id] = comp.Name
			tasks = append(tasks, localexecutor.Task{
				Component:      comp,
				Index:          i,
				ID:             id,
				Conf:           taskConf,
				TaskComponents: taskComponents,
				Debug:          debug,
			})
		}
	}

	g, gctx := errgroup.WithContext(runCtx)
	for _, task := range tasks {
		taskCtx := ctxlog.With(gctx, "component", task.Component.Name, "task", task.Index)
		c.metrics.TaskStarted(task.Component.Name)
		g.Go(func() error {
			err := c.runner.Run(taskCtx, task)
			c.metrics.TaskExited(task.Component.Name, err)
			if err != nil {
				ctxlog.FromContext(taskCtx).Error("Task failed.", "error", err)
			}
			return err
		})
	}
	logger.Info("Local topology started.", "components", len(order), "tasks", len(tasks))

	go func() {
		err := g.Wait()
		if err == nil {
			// No task failed; stay up until shut down.
			<-runCtx.Done()
		}
		h.err = err
		close(h.done)
	}()
	return h, nil
}

// taskCount is the declared parallelism, at least 1, capped by limit when
// limit is positive.
func taskCount(hint, limit int) int {
	n := hint
	if n < 1 {
		n = 1
	}
	if limit > 0 && n > limit {
		n = limit
	}
	return n
}

// handle implements session.Handle.
type handle struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Shutdown stops all tasks and waits for them to exit. Calling it again is
// harmless.
func (h *handle) Shutdown(ctx context.Context) error {
	h.once.Do(h.cancel)
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for local topology to stop: %w", context.Cause(ctx))
	}
}

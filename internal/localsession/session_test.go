package localsession

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/localexecutor"
	"github.com/specialistvlad/petrelgo/internal/metrics"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology/topologytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records started tasks and blocks until cancelled, unless the
// task's component is listed in fail.
type fakeRunner struct {
	mu      sync.Mutex
	started []string
	tasks   []localexecutor.Task
	fail    map[string]error
}

func (r *fakeRunner) Run(ctx context.Context, task localexecutor.Task) error {
	r.mu.Lock()
	r.started = append(r.started, task.String())
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()

	if err := r.fail[task.Component.Name]; err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (r *fakeRunner) Started() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.started...)
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var wordCount = topologytest.Spec{
	Spouts: []topologytest.Component{{Name: "randomsentence", Command: "python", Script: "spout.py", Parallelism: 1}},
	Bolts: []topologytest.Component{
		{Name: "splitsentence", Command: "python", Script: "split.py", Parallelism: 3, Inputs: []string{"randomsentence"}},
		{Name: "count", Command: "python", Script: "count.py", Inputs: []string{"splitsentence"}},
	},
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("local topology did not stop")
	}
}

func TestCluster_StartsEveryTask(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		conf *stormconf.Map
		want []string
	}{
		{
			name: "declared parallelism",
			conf: stormconf.NewMap(),
			want: []string{"count[0]", "splitsentence[0]", "splitsentence[1]", "splitsentence[2]", "randomsentence[0]"},
		},
		{
			name: "local overrides cap parallelism",
			conf: stormconf.LocalOverrides(),
			want: []string{"count[0]", "splitsentence[0]", "randomsentence[0]"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			runner := &fakeRunner{}
			m := metrics.New()
			cluster := New(runner, WithMetrics(m))

			// --- Act ---
			h, err := cluster.Submit(testContext(), "test topology", tc.conf, topologytest.Build(wordCount))
			require.NoError(t, err)
			require.Eventually(t, func() bool { return len(runner.Started()) == len(tc.want) }, 5*time.Second, 5*time.Millisecond)

			// --- Assert ---
			assert.ElementsMatch(t, tc.want, runner.Started())
			require.NoError(t, h.Shutdown(context.Background()))
			waitDone(t, h.Done())
			assert.NoError(t, h.Err())
		})
	}
}

func TestCluster_TasksCarryIdentityAndConf(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	runner := &fakeRunner{}
	conf := stormconf.NewMap()
	conf.Set(stormconf.PetrelUser, "alice")

	// --- Act ---
	h, err := New(runner).Submit(testContext(), "test topology", conf, topologytest.Build(wordCount))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(runner.Started()) == 5 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, h.Shutdown(context.Background()))
	waitDone(t, h.Done())

	// --- Assert ---
	runner.mu.Lock()
	defer runner.mu.Unlock()
	want := map[int]string{1: "count", 2: "splitsentence", 3: "splitsentence", 4: "splitsentence", 5: "randomsentence"}
	ids := map[int]bool{}
	for _, task := range runner.tasks {
		ids[task.ID] = true
		assert.Equal(t, want[task.ID], task.Component.Name)
		assert.Equal(t, want, task.TaskComponents)
		assert.Equal(t, "alice", task.Conf[stormconf.PetrelUser])
	}
	assert.Len(t, ids, 5)
}

func TestCluster_TaskFailureStopsTopology(t *testing.T) {
	t.Parallel()

	boom := errors.New("count exited with code 1")
	runner := &fakeRunner{fail: map[string]error{"count": boom}}

	h, err := New(runner).Submit(testContext(), "test topology", stormconf.NewMap(), topologytest.Build(wordCount))
	require.NoError(t, err)

	waitDone(t, h.Done())
	assert.ErrorIs(t, h.Err(), boom)
	assert.NoError(t, h.Shutdown(context.Background()))
}

func TestCluster_OutlivesSubmitContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(testContext())
	h, err := New(&fakeRunner{}).Submit(ctx, "test topology", stormconf.NewMap(), topologytest.Build(wordCount))
	require.NoError(t, err)
	cancel()

	select {
	case <-h.Done():
		t.Fatal("cancelling the submit context stopped the topology")
	case <-time.After(50 * time.Millisecond):
	}
	assert.NoError(t, h.Err())

	require.NoError(t, h.Shutdown(context.Background()))
	require.NoError(t, h.Shutdown(context.Background()), "shutdown twice")
	waitDone(t, h.Done())
}

func TestCluster_EmptyTopologyRunsUntilShutdown(t *testing.T) {
	t.Parallel()

	h, err := New(&fakeRunner{}).Submit(testContext(), "test topology", stormconf.NewMap(), topologytest.Build(topologytest.Spec{}))
	require.NoError(t, err)

	select {
	case <-h.Done():
		t.Fatal("empty topology stopped by itself")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, h.Shutdown(context.Background()))
	waitDone(t, h.Done())
}

func TestCluster_ShutdownTimeout(t *testing.T) {
	t.Parallel()

	stuck := make(chan struct{})
	defer close(stuck)
	runner := runnerFunc(func(ctx context.Context, _ localexecutor.Task) error {
		<-stuck
		return nil
	})
	h, err := New(runner).Submit(testContext(), "test topology", stormconf.NewMap(), topologytest.Build(wordCount))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = h.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCluster_UnknownInput(t *testing.T) {
	t.Parallel()

	topo := topologytest.Build(topologytest.Spec{
		Bolts: []topologytest.Component{{Name: "orphan", Inputs: []string{"nowhere"}}},
	})

	_, err := New(&fakeRunner{}).Submit(testContext(), "test topology", stormconf.NewMap(), topo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index topology components")
}

func TestTaskCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1, taskCount(0, 0))
	assert.Equal(t, 4, taskCount(4, 0))
	assert.Equal(t, 1, taskCount(4, 1))
	assert.Equal(t, 2, taskCount(2, 8))
}

type runnerFunc func(ctx context.Context, task localexecutor.Task) error

func (f runnerFunc) Run(ctx context.Context, task localexecutor.Task) error { return f(ctx, task) }

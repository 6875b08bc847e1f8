// Package localexecutor runs the tasks of a local topology. The default
// runner starts shell components as child processes and relays their output
// to the log.
package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// DefaultWaitDelay is how long a task process gets to exit after being
// interrupted before it is killed.
const DefaultWaitDelay = 5 * time.Second

// Task is one running instance of a component.
type Task struct {
	Component topology.Component
	// Index numbers the tasks of one component from 0.
	Index int
	// ID is unique across the topology's tasks and starts at 1.
	ID int
	// Conf is the merged topology configuration handed to the component.
	Conf map[string]any
	// TaskComponents maps every task ID of the topology to its component.
	TaskComponents map[int]string
	// Debug relays task output at info level instead of debug.
	Debug bool
}

func (t Task) String() string {
	return t.Component.Name + "[" + strconv.Itoa(t.Index) + "]"
}

// Runner runs one task until it exits or ctx is cancelled. Cancellation is a
// clean stop and returns nil; a task that ends by itself is an error.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

// ExecRunner runs shell components as child processes speaking the multilang
// protocol: the process gets the handshake on stdin, and stdin stays open
// until the task is stopped. Components without a shell command cannot run
// outside the JVM, so their tasks stay idle until cancelled.
type ExecRunner struct {
	// Dir is the working directory of task processes. Empty means the
	// launcher's own.
	Dir string
	// PidDir holds the per-task pid directories. Empty means the system
	// temporary directory.
	PidDir string
	// WaitDelay bounds the graceful exit after an interrupt.
	WaitDelay time.Duration
}

// NewExecRunner returns an ExecRunner starting processes in dir.
func NewExecRunner(dir string) *ExecRunner {
	return &ExecRunner{Dir: dir, WaitDelay: DefaultWaitDelay}
}

func (r *ExecRunner) Run(ctx context.Context, task Task) error {
	logger := ctxlog.FromContext(ctx)

	shell := task.Component.Shell
	if shell == nil || shell.ExecutionCommand == "" {
		logger.Warn("Component has no shell command, task stays idle.")
		<-ctx.Done()
		return nil
	}

	pidDir, err := os.MkdirTemp(r.PidDir, "petrel-task-"+strconv.Itoa(task.ID)+"-")
	if err != nil {
		return fmt.Errorf("task %s: create pid directory: %w", task, err)
	}
	defer os.RemoveAll(pidDir)

	cmd := exec.CommandContext(ctx, shell.ExecutionCommand, shell.Script)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(),
		"PETREL_COMPONENT="+task.Component.Name,
		"PETREL_TASK_INDEX="+strconv.Itoa(task.Index),
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}
	cmd.Cancel = func() error {
		stdin.Close()
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.WaitDelay

	level := levelFor(task.Debug)
	stdout := newLineWriter(logger.With("stream", "stdout"), level)
	stderr := newLineWriter(logger.With("stream", "stderr"), level)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("Starting task process.", "command", shell.ExecutionCommand, "script", shell.Script, "task_id", task.ID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}
	if err := writeMessage(stdin, newHandshake(task, pidDir)); err != nil {
		// The process is gone or going; Wait reports how it ended.
		logger.Debug("Handshake not delivered.", "error", err)
	}
	err = cmd.Wait()
	stdout.Flush()
	stderr.Flush()

	if ctx.Err() != nil {
		logger.Debug("Task process stopped.", "error", err)
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("task %s exited with code %d", task, exitErr.ExitCode())
	}
	if err != nil {
		return fmt.Errorf("task %s: %w", task, err)
	}
	return fmt.Errorf("task %s exited unexpectedly", task)
}

package localexecutor

import (
	"encoding/json"
	"fmt"
	"io"
)

// multilangEnd terminates every multilang message.
const multilangEnd = "\nend\n"

// handshake is the first message a shell component reads from stdin. The
// component answers on stdout with its pid and then waits for commands.
type handshake struct {
	Conf    map[string]any `json:"conf"`
	Context taskContext    `json:"context"`
	PidDir  string         `json:"pidDir"`
}

type taskContext struct {
	TaskID        int            `json:"taskid"`
	ComponentID   string         `json:"componentid"`
	TaskComponent map[int]string `json:"task->component"`
}

func newHandshake(task Task, pidDir string) handshake {
	conf := task.Conf
	if conf == nil {
		conf = map[string]any{}
	}
	tc := task.TaskComponents
	if tc == nil {
		tc = map[int]string{task.ID: task.Component.Name}
	}
	return handshake{
		Conf: conf,
		Context: taskContext{
			TaskID:        task.ID,
			ComponentID:   task.Component.Name,
			TaskComponent: tc,
		},
		PidDir: pidDir,
	}
}

// writeMessage writes one multilang message to w.
func writeMessage(w io.Writer, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode multilang message: %w", err)
	}
	b = append(b, multilangEnd...)
	_, err = w.Write(b)
	return err
}

// Package topology holds the serialized processing graph a launcher ships to
// the execution engine.
//
// A Topology is decoded generically: every Thrift field is kept as a
// self-describing Value, so the launcher can forward the graph without
// knowing the engine's full schema. The exact encoded bytes are kept as well.
// Components gives a read-only view of the Storm layout for logging and for
// the local runtime. A decoded Topology is never mutated.
package topology

import (
	"context"
	"sort"

	"github.com/apache/thrift/lib/go/thrift"
)

// Top-level field ids of a Storm topology struct.
const (
	fieldSpouts      int16 = 1
	fieldBolts       int16 = 2
	fieldStateSpouts int16 = 3
)

// Topology is an opaque processing graph record.
type Topology struct {
	fields []Field
	raw    []byte
}

// New returns an empty Topology ready to be decoded into.
func New() *Topology {
	return &Topology{}
}

// Read decodes one Thrift struct from iprot.
func (t *Topology) Read(ctx context.Context, iprot thrift.TProtocol) error {
	fields, err := readStruct(ctx, iprot, 0)
	if err != nil {
		return err
	}
	t.fields = fields
	return nil
}

// Write encodes the topology as the same Thrift struct it was decoded from.
func (t *Topology) Write(ctx context.Context, oprot thrift.TProtocol) error {
	return writeStruct(ctx, oprot, "StormTopology", t.fields)
}

// SetRaw records the encoded bytes the topology was decoded from.
func (t *Topology) SetRaw(raw []byte) {
	t.raw = append([]byte(nil), raw...)
}

// Raw returns the encoded bytes. Callers must not modify the slice.
func (t *Topology) Raw() []byte {
	return t.raw
}

// Field returns the top-level field with the given id.
func (t *Topology) Field(id int16) (Value, bool) {
	return Value{Type: thrift.STRUCT, Fields: t.fields}.Field(id)
}

// Kind classifies a component.
type Kind string

const (
	KindSpout      Kind = "spout"
	KindBolt       Kind = "bolt"
	KindStateSpout Kind = "state_spout"
)

// Component is a spout or bolt declared by the topology.
type Component struct {
	Name string
	Kind Kind
	// Shell is nil unless the component runs as an external process.
	Shell *ShellCommand
	// Parallelism is the declared task count, 0 when unset.
	Parallelism int
	// Inputs lists the upstream streams this component subscribes to.
	Inputs []StreamID
	// JSONConf is the component-specific configuration, if any.
	JSONConf string
}

// ShellCommand is the process a shell component runs as.
type ShellCommand struct {
	ExecutionCommand string
	Script           string
}

// StreamID names one output stream of a component.
type StreamID struct {
	ComponentID string
	StreamID    string
}

// Components lists spouts, state spouts and bolts, each group sorted by name.
func (t *Topology) Components() []Component {
	var out []Component
	for _, group := range []struct {
		id   int16
		kind Kind
	}{
		{fieldSpouts, KindSpout},
		{fieldStateSpouts, KindStateSpout},
		{fieldBolts, KindBolt},
	} {
		v, ok := t.Field(group.id)
		if !ok || v.Type != thrift.MAP {
			continue
		}
		var comps []Component
		for _, e := range v.Entries {
			comps = append(comps, componentFrom(e.Key.Text(), group.kind, e.Value))
		}
		sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
		out = append(out, comps...)
	}
	return out
}

// componentFrom reads SpoutSpec, Bolt and StateSpoutSpec, which share the
// layout {1: ComponentObject, 2: ComponentCommon}.
func componentFrom(name string, kind Kind, spec Value) Component {
	c := Component{Name: name, Kind: kind}

	if obj, ok := spec.Field(1); ok {
		// ComponentObject is a union; field 2 is ShellComponent.
		if shell, ok := obj.Field(2); ok {
			cmd, _ := shell.Field(1)
			script, _ := shell.Field(2)
			c.Shell = &ShellCommand{ExecutionCommand: cmd.Text(), Script: script.Text()}
		}
	}

	common, ok := spec.Field(2)
	if !ok {
		return c
	}
	if inputs, ok := common.Field(1); ok && inputs.Type == thrift.MAP {
		for _, e := range inputs.Entries {
			comp, _ := e.Key.Field(1)
			stream, _ := e.Key.Field(2)
			c.Inputs = append(c.Inputs, StreamID{ComponentID: comp.Text(), StreamID: stream.Text()})
		}
		sort.Slice(c.Inputs, func(i, j int) bool {
			if c.Inputs[i].ComponentID != c.Inputs[j].ComponentID {
				return c.Inputs[i].ComponentID < c.Inputs[j].ComponentID
			}
			return c.Inputs[i].StreamID < c.Inputs[j].StreamID
		})
	}
	if hint, ok := common.Field(3); ok {
		c.Parallelism = int(hint.Int)
	}
	if conf, ok := common.Field(4); ok {
		c.JSONConf = conf.Text()
	}
	return c
}

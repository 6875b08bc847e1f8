// Package topologytest builds Thrift-encoded Storm topologies for tests.
package topologytest

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/specialistvlad/petrelgo/internal/topology"
)

// Component describes one spout or bolt to encode.
type Component struct {
	Name        string
	Command     string
	Script      string
	Parallelism int
	// Inputs are upstream component names, subscribed on the default stream
	// with a shuffle grouping.
	Inputs []string
}

// Spec describes a topology to encode.
type Spec struct {
	Spouts []Component
	Bolts  []Component
}

// Encode returns the Thrift binary encoding of spec. It panics on failure,
// which can only happen on a programming error in the test itself.
func Encode(spec Spec) []byte {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})

	must(p.WriteStructBegin(ctx, "StormTopology"))
	writeComponents(ctx, p, 1, spec.Spouts)
	writeComponents(ctx, p, 2, spec.Bolts)
	// state_spouts is always present, even if empty.
	must(p.WriteFieldBegin(ctx, "state_spouts", thrift.MAP, 3))
	must(p.WriteMapBegin(ctx, thrift.STRING, thrift.STRUCT, 0))
	must(p.WriteMapEnd(ctx))
	must(p.WriteFieldEnd(ctx))
	must(p.WriteFieldStop(ctx))
	must(p.WriteStructEnd(ctx))
	must(p.Flush(ctx))

	return append([]byte(nil), buf.Bytes()...)
}

// Build encodes spec and decodes it back into a Topology.
func Build(spec Spec) *topology.Topology {
	raw := Encode(spec)
	buf := thrift.NewTMemoryBuffer()
	_, err := buf.Write(raw)
	must(err)
	topo := topology.New()
	must(topo.Read(context.Background(), thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})))
	topo.SetRaw(raw)
	return topo
}

func writeComponents(ctx context.Context, p thrift.TProtocol, id int16, comps []Component) {
	must(p.WriteFieldBegin(ctx, "", thrift.MAP, id))
	must(p.WriteMapBegin(ctx, thrift.STRING, thrift.STRUCT, len(comps)))
	for _, c := range comps {
		must(p.WriteString(ctx, c.Name))
		must(p.WriteStructBegin(ctx, "spec"))

		// 1: ComponentObject { 2: ShellComponent }
		must(p.WriteFieldBegin(ctx, "object", thrift.STRUCT, 1))
		must(p.WriteStructBegin(ctx, "ComponentObject"))
		must(p.WriteFieldBegin(ctx, "shell", thrift.STRUCT, 2))
		must(p.WriteStructBegin(ctx, "ShellComponent"))
		writeString(ctx, p, 1, c.Command)
		writeString(ctx, p, 2, c.Script)
		must(p.WriteFieldStop(ctx))
		must(p.WriteStructEnd(ctx))
		must(p.WriteFieldEnd(ctx))
		must(p.WriteFieldStop(ctx))
		must(p.WriteStructEnd(ctx))
		must(p.WriteFieldEnd(ctx))

		// 2: ComponentCommon
		must(p.WriteFieldBegin(ctx, "common", thrift.STRUCT, 2))
		must(p.WriteStructBegin(ctx, "ComponentCommon"))
		must(p.WriteFieldBegin(ctx, "inputs", thrift.MAP, 1))
		must(p.WriteMapBegin(ctx, thrift.STRUCT, thrift.STRUCT, len(c.Inputs)))
		for _, in := range c.Inputs {
			must(p.WriteStructBegin(ctx, "GlobalStreamId"))
			writeString(ctx, p, 1, in)
			writeString(ctx, p, 2, "default")
			must(p.WriteFieldStop(ctx))
			must(p.WriteStructEnd(ctx))

			// Grouping union, 4: shuffle NullStruct.
			must(p.WriteStructBegin(ctx, "Grouping"))
			must(p.WriteFieldBegin(ctx, "shuffle", thrift.STRUCT, 4))
			must(p.WriteStructBegin(ctx, "NullStruct"))
			must(p.WriteFieldStop(ctx))
			must(p.WriteStructEnd(ctx))
			must(p.WriteFieldEnd(ctx))
			must(p.WriteFieldStop(ctx))
			must(p.WriteStructEnd(ctx))
		}
		must(p.WriteMapEnd(ctx))
		must(p.WriteFieldEnd(ctx))

		must(p.WriteFieldBegin(ctx, "streams", thrift.MAP, 2))
		must(p.WriteMapBegin(ctx, thrift.STRING, thrift.STRUCT, 0))
		must(p.WriteMapEnd(ctx))
		must(p.WriteFieldEnd(ctx))

		if c.Parallelism > 0 {
			must(p.WriteFieldBegin(ctx, "parallelism_hint", thrift.I32, 3))
			must(p.WriteI32(ctx, int32(c.Parallelism)))
			must(p.WriteFieldEnd(ctx))
		}
		must(p.WriteFieldStop(ctx))
		must(p.WriteStructEnd(ctx))
		must(p.WriteFieldEnd(ctx))

		must(p.WriteFieldStop(ctx))
		must(p.WriteStructEnd(ctx))
	}
	must(p.WriteMapEnd(ctx))
	must(p.WriteFieldEnd(ctx))
}

func writeString(ctx context.Context, p thrift.TProtocol, id int16, s string) {
	must(p.WriteFieldBegin(ctx, "", thrift.STRING, id))
	must(p.WriteString(ctx, s))
	must(p.WriteFieldEnd(ctx))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

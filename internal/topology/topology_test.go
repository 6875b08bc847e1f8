package topology_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/google/go-cmp/cmp"
	"github.com/specialistvlad/petrelgo/internal/recordio"
	"github.com/specialistvlad/petrelgo/internal/topology"
	"github.com/specialistvlad/petrelgo/internal/topology/topologytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wordCount = topologytest.Spec{
	Spouts: []topologytest.Component{
		{Name: "randomsentence", Command: "python", Script: "randomsentence.py"},
	},
	Bolts: []topologytest.Component{
		{Name: "splitsentence", Command: "python", Script: "splitsentence.py", Parallelism: 2, Inputs: []string{"randomsentence"}},
		{Name: "count", Command: "python", Script: "wordcount.py", Parallelism: 3, Inputs: []string{"splitsentence"}},
	},
}

func decode(t *testing.T, data []byte) *topology.Topology {
	t.Helper()
	r := recordio.NewReader(bytes.NewReader(data), topology.New)
	topo, err := r.Next(context.Background())
	require.NoError(t, err)
	return topo
}

func TestComponents(t *testing.T) {
	t.Parallel()

	topo := decode(t, topologytest.Encode(wordCount))

	want := []topology.Component{
		{
			Name:  "randomsentence",
			Kind:  topology.KindSpout,
			Shell: &topology.ShellCommand{ExecutionCommand: "python", Script: "randomsentence.py"},
		},
		{
			Name:        "count",
			Kind:        topology.KindBolt,
			Shell:       &topology.ShellCommand{ExecutionCommand: "python", Script: "wordcount.py"},
			Parallelism: 3,
			Inputs:      []topology.StreamID{{ComponentID: "splitsentence", StreamID: "default"}},
		},
		{
			Name:        "splitsentence",
			Kind:        topology.KindBolt,
			Shell:       &topology.ShellCommand{ExecutionCommand: "python", Script: "splitsentence.py"},
			Parallelism: 2,
			Inputs:      []topology.StreamID{{ComponentID: "randomsentence", StreamID: "default"}},
		},
	}

	if diff := cmp.Diff(want, topo.Components()); diff != "" {
		t.Errorf("Components() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteReproducesInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	data := topologytest.Encode(wordCount)
	topo := decode(t, data)
	assert.Equal(t, data, topo.Raw())

	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})
	require.NoError(t, topo.Write(ctx, p))
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, data, buf.Bytes(), "re-encoding must forward the topology unmodified")
}

func TestDecode_InvalidTypeTag(t *testing.T) {
	t.Parallel()

	// Field header with type tag 99, id 1.
	data := []byte{99, 0x00, 0x01, 0x00}
	r := recordio.NewReader(bytes.NewReader(data), topology.New)

	topo, err := r.Next(context.Background())
	require.ErrorIs(t, err, topology.ErrInvalidType)
	assert.Nil(t, topo)

	var decodeErr *recordio.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func TestDecode_Truncated(t *testing.T) {
	t.Parallel()

	data := topologytest.Encode(wordCount)
	r := recordio.NewReader(bytes.NewReader(data[:len(data)/2]), topology.New)

	topo, err := r.Next(context.Background())
	var decodeErr *recordio.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Nil(t, topo)
}

func TestField(t *testing.T) {
	t.Parallel()

	topo := decode(t, topologytest.Encode(wordCount))

	bolts, ok := topo.Field(2)
	require.True(t, ok)
	assert.Equal(t, thrift.TType(thrift.MAP), bolts.Type)
	assert.Len(t, bolts.Entries, 2)

	_, ok = topo.Field(42)
	assert.False(t, ok)
}

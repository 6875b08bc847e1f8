package nimbus

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
	"github.com/specialistvlad/petrelgo/internal/topology/topologytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	method string
	args   *topology.Topology
}

// fakeNimbus is a thrift.TClient that decodes every argument struct and
// answers with an encoded result struct built by respond.
type fakeNimbus struct {
	t       *testing.T
	calls   []recordedCall
	respond func(method string, p thrift.TProtocol)
}

func (f *fakeNimbus) Call(ctx context.Context, method string, args, result thrift.TStruct) (thrift.ResponseMeta, error) {
	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})
	require.NoError(f.t, args.Write(ctx, p))
	decoded := topology.New()
	require.NoError(f.t, decoded.Read(ctx, p))
	f.calls = append(f.calls, recordedCall{method: method, args: decoded})

	out := thrift.NewTMemoryBuffer()
	op := thrift.NewTBinaryProtocolConf(out, &thrift.TConfiguration{})
	require.NoError(f.t, op.WriteStructBegin(ctx, method+"_result"))
	if f.respond != nil {
		f.respond(method, op)
	}
	require.NoError(f.t, op.WriteFieldStop(ctx))
	require.NoError(f.t, op.WriteStructEnd(ctx))
	return thrift.ResponseMeta{}, result.Read(ctx, op)
}

func (f *fakeNimbus) methods() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func writeStringField(p thrift.TProtocol, id int16, v string) {
	ctx := context.Background()
	_ = p.WriteFieldBegin(ctx, "", thrift.STRING, id)
	_ = p.WriteString(ctx, v)
	_ = p.WriteFieldEnd(ctx)
}

func writeException(p thrift.TProtocol, id int16, msg string) {
	ctx := context.Background()
	_ = p.WriteFieldBegin(ctx, "", thrift.STRUCT, id)
	_ = p.WriteStructBegin(ctx, "")
	writeStringField(p, 1, msg)
	_ = p.WriteFieldStop(ctx)
	_ = p.WriteStructEnd(ctx)
	_ = p.WriteFieldEnd(ctx)
}

func uploadResponder(method string, p thrift.TProtocol) {
	if method == "beginFileUpload" {
		writeStringField(p, 0, "/storm/inbox/stormjar-1.jar")
	}
}

func testContext() context.Context {
	return ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func text(t *testing.T, s *topology.Topology, id int16) string {
	t.Helper()
	v, ok := s.Field(id)
	require.True(t, ok, "field %d missing", id)
	return v.Text()
}

func TestAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		kv   map[string]any
		want string
	}{
		{name: "defaults", want: "localhost:6627"},
		{name: "host", kv: map[string]any{stormconf.NimbusHost: "nimbus.internal"}, want: "nimbus.internal:6627"},
		{
			name: "seeds win over host",
			kv: map[string]any{
				stormconf.NimbusSeeds:      []any{"seed-1", "seed-2"},
				stormconf.NimbusHost:       "nimbus.internal",
				stormconf.NimbusThriftPort: 7000,
			},
			want: "seed-1:7000",
		},
		{name: "ipv6", kv: map[string]any{stormconf.NimbusHost: "::1"}, want: "[::1]:6627"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Address(stormconf.FromMap(tc.kv)))
		})
	}
}

func TestUploadJar_Chunks(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	fake := &fakeNimbus{t: t, respond: uploadResponder}
	c := newClient(fake)
	c.chunkSize = 4

	// --- Act ---
	location, err := c.UploadJar(testContext(), strings.NewReader("0123456789"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "/storm/inbox/stormjar-1.jar", location)
	assert.Equal(t, []string{"beginFileUpload", "uploadChunk", "uploadChunk", "uploadChunk", "finishFileUpload"}, fake.methods())

	var chunks []string
	for _, call := range fake.calls[1:4] {
		assert.Equal(t, location, text(t, call.args, 1))
		chunks = append(chunks, text(t, call.args, 2))
	}
	assert.Equal(t, []string{"0123", "4567", "89"}, chunks)
	assert.Equal(t, location, text(t, fake.calls[4].args, 1))
}

func TestUploadJar_ExactMultipleOfChunkSize(t *testing.T) {
	t.Parallel()

	fake := &fakeNimbus{t: t, respond: uploadResponder}
	c := newClient(fake)
	c.chunkSize = 4

	_, err := c.UploadJar(testContext(), strings.NewReader("01234567"))
	require.NoError(t, err)
	assert.Equal(t, []string{"beginFileUpload", "uploadChunk", "uploadChunk", "finishFileUpload"}, fake.methods())
}

func TestSubmitTopology_Arguments(t *testing.T) {
	t.Parallel()

	fake := &fakeNimbus{t: t}
	topo := topologytest.Build(topologytest.Spec{
		Spouts: []topologytest.Component{{Name: "randomsentence", Command: "python", Script: "spout.py"}},
	})

	err := newClient(fake).SubmitTopology(testContext(), "wordcount", "/storm/inbox/stormjar-1.jar", `{"topology.workers":2}`, topo)
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	args := fake.calls[0].args
	assert.Equal(t, "wordcount", text(t, args, 1))
	assert.Equal(t, "/storm/inbox/stormjar-1.jar", text(t, args, 2))
	assert.Equal(t, `{"topology.workers":2}`, text(t, args, 3))

	// Field 4 carries the topology struct unchanged.
	buf := thrift.NewTMemoryBuffer()
	inner, ok := args.Field(4)
	require.True(t, ok)
	require.Equal(t, thrift.TType(thrift.STRUCT), inner.Type)
	reencoded := topology.New()
	_, _ = buf.Write(topo.Raw())
	require.NoError(t, reencoded.Read(context.Background(), thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})))
	spouts, _ := reencoded.Field(1)
	gotSpouts, _ := inner.Field(1)
	assert.Equal(t, spouts, gotSpouts)
}

func TestSubmitTopology_DeclaredException(t *testing.T) {
	t.Parallel()

	fake := &fakeNimbus{t: t, respond: func(_ string, p thrift.TProtocol) {
		writeException(p, 1, "Topology with name `wordcount` already exists on cluster")
	}}

	err := newClient(fake).SubmitTopology(testContext(), "wordcount", "loc", "{}", topology.New())

	var exc *Exception
	require.ErrorAs(t, err, &exc)
	assert.Equal(t, "AlreadyAliveException", exc.Name)
	assert.Contains(t, err.Error(), "already exists on cluster")
}

func TestSubmitter(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	jar := filepath.Join(t.TempDir(), "wordcount.jar")
	require.NoError(t, os.WriteFile(jar, bytes.Repeat([]byte{'x'}, 10), 0o644))

	fake := &fakeNimbus{t: t, respond: uploadResponder}
	var dialed string
	s := NewSubmitter(jar, time.Second)
	s.dial = func(addr string, _ time.Duration) (*Client, error) {
		dialed = addr
		return newClient(fake), nil
	}
	conf := stormconf.NewMap()
	conf.Set(stormconf.NimbusHost, "nimbus.internal")
	conf.Set(stormconf.TopologyWorkers, 2)

	// --- Act ---
	err := s.Submit(testContext(), "wordcount", conf, topology.New())

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "nimbus.internal:6627", dialed)
	assert.Equal(t, []string{"beginFileUpload", "uploadChunk", "finishFileUpload", "submitTopology"}, fake.methods())
	submit := fake.calls[3].args
	assert.Equal(t, "/storm/inbox/stormjar-1.jar", text(t, submit, 2))
	assert.Equal(t, `{"nimbus.host":"nimbus.internal","topology.workers":2}`, text(t, submit, 3))
}

func TestSubmitter_NoJar(t *testing.T) {
	t.Parallel()

	err := NewSubmitter("", time.Second).Submit(testContext(), "wordcount", stormconf.NewMap(), topology.New())
	assert.ErrorIs(t, err, ErrNoJar)
}

package recordio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"testing/iotest"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair is a minimal two-field Thrift struct used to exercise the reader.
type pair struct {
	Name  string
	Count int32
	raw   []byte
}

func newPair() *pair { return &pair{} }

func (p *pair) SetRaw(raw []byte) { p.raw = append([]byte(nil), raw...) }

func (p *pair) Read(ctx context.Context, iprot thrift.TProtocol) error {
	if _, err := iprot.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typ, id, err := iprot.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typ == thrift.STOP {
			break
		}
		switch {
		case id == 1 && typ == thrift.STRING:
			p.Name, err = iprot.ReadString(ctx)
		case id == 2 && typ == thrift.I32:
			p.Count, err = iprot.ReadI32(ctx)
		default:
			err = iprot.Skip(ctx, typ)
		}
		if err != nil {
			return err
		}
		if err := iprot.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return iprot.ReadStructEnd(ctx)
}

func encodePair(t *testing.T, name string, count int32) []byte {
	t.Helper()
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTBinaryProtocolConf(buf, &thrift.TConfiguration{})

	require.NoError(t, p.WriteStructBegin(ctx, "pair"))
	require.NoError(t, p.WriteFieldBegin(ctx, "name", thrift.STRING, 1))
	require.NoError(t, p.WriteString(ctx, name))
	require.NoError(t, p.WriteFieldEnd(ctx))
	require.NoError(t, p.WriteFieldBegin(ctx, "count", thrift.I32, 2))
	require.NoError(t, p.WriteI32(ctx, count))
	require.NoError(t, p.WriteFieldEnd(ctx))
	require.NoError(t, p.WriteFieldStop(ctx))
	require.NoError(t, p.WriteStructEnd(ctx))
	require.NoError(t, p.Flush(ctx))

	return append([]byte(nil), buf.Bytes()...)
}

func TestReader_SingleRecord(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// --- Arrange ---
	data := encodePair(t, "spout", 3)
	r := NewReader(bytes.NewReader(data), newPair)

	// --- Act & Assert ---
	more, err := r.HasNext()
	require.NoError(t, err)
	require.True(t, more, "HasNext should report data before the first read")

	rec, err := r.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "spout", rec.Name)
	assert.Equal(t, int32(3), rec.Count)
	assert.Equal(t, data, rec.raw, "raw bytes should cover exactly the record")

	more, err = r.HasNext()
	require.NoError(t, err)
	assert.False(t, more, "HasNext should report exhaustion after the only record")

	rec, err = r.Next(ctx)
	require.ErrorIs(t, err, ErrExhausted)
	assert.Nil(t, rec)
}

func TestReader_HasNextDoesNotConsume(t *testing.T) {
	t.Parallel()

	data := encodePair(t, "bolt", 7)
	r := NewReader(bytes.NewReader(data), newPair)

	for i := 0; i < 5; i++ {
		more, err := r.HasNext()
		require.NoError(t, err)
		require.True(t, more)
	}
	assert.Equal(t, int64(0), r.Offset())

	rec, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bolt", rec.Name)
	assert.Equal(t, int64(len(data)), r.Offset())
}

func TestReader_AllYieldsEveryRecord(t *testing.T) {
	t.Parallel()

	var data []byte
	data = append(data, encodePair(t, "a", 1)...)
	data = append(data, encodePair(t, "b", 2)...)
	data = append(data, encodePair(t, "c", 3)...)

	r := NewReader(bytes.NewReader(data), newPair)

	var names []string
	for rec, err := range r.All(context.Background()) {
		require.NoError(t, err)
		names = append(names, rec.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestReader_TruncatedRecord(t *testing.T) {
	t.Parallel()

	data := encodePair(t, "splitter", 4)
	r := NewReader(bytes.NewReader(data[:len(data)-4]), newPair)

	rec, err := r.Next(context.Background())
	require.Error(t, err)
	assert.Nil(t, rec, "a partially decoded record must not be returned")

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, int64(0), decodeErr.Offset)
}

func TestReader_TruncatedSecondRecordReportsOffset(t *testing.T) {
	t.Parallel()

	first := encodePair(t, "a", 1)
	second := encodePair(t, "b", 2)
	data := append(append([]byte(nil), first...), second[:3]...)

	r := NewReader(bytes.NewReader(data), newPair)
	_, err := r.Next(context.Background())
	require.NoError(t, err)

	_, err = r.Next(context.Background())
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, int64(len(first)), decodeErr.Offset)
}

func TestReader_HasNextSurfacesIOErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	r := NewReader(iotest.ErrReader(boom), newPair)

	more, err := r.HasNext()
	require.ErrorIs(t, err, boom)
	assert.False(t, more)
}

func TestReader_EmptyStream(t *testing.T) {
	t.Parallel()

	r := NewReader(bytes.NewReader(nil), newPair)
	more, err := r.HasNext()
	require.NoError(t, err)
	assert.False(t, more)

	count := 0
	for range r.All(context.Background()) {
		count++
	}
	assert.Zero(t, count)
}

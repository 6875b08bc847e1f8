package recordio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/apache/thrift/lib/go/thrift"
)

// ErrExhausted is returned by Next when the stream holds no further record.
var ErrExhausted = errors.New("recordio: no more records")

// Record is a value that populates itself from a Thrift protocol.
type Record interface {
	Read(ctx context.Context, iprot thrift.TProtocol) error
}

// RawSetter is implemented by records that want the exact bytes they were
// decoded from.
type RawSetter interface {
	SetRaw(raw []byte)
}

// DecodeError reports a record that does not conform to the binary protocol.
type DecodeError struct {
	// Offset is the stream position where the failing record started.
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode record at byte %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reader is a lazy, forward-only cursor over records of type T.
// It is not safe for concurrent use.
type Reader[T Record] struct {
	buf       *bufio.Reader
	cur       *cursor
	proto     thrift.TProtocol
	newRecord func() T
}

// NewReader wraps r. newRecord is called once per Next to obtain the empty
// record the next value is decoded into.
func NewReader[T Record](r io.Reader, newRecord func() T) *Reader[T] {
	buf := bufio.NewReader(r)
	cur := &cursor{r: buf}
	return &Reader[T]{
		buf:       buf,
		cur:       cur,
		proto:     thrift.NewTBinaryProtocolConf(cur, &thrift.TConfiguration{}),
		newRecord: newRecord,
	}
}

// HasNext reports whether at least one more byte is available. It never
// advances the read position.
func (r *Reader[T]) HasNext() (bool, error) {
	_, err := r.buf.Peek(1)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	return false, fmt.Errorf("peek record stream: %w", err)
}

// Next decodes exactly one record. On failure the partially decoded record
// is dropped and the zero value of T is returned.
func (r *Reader[T]) Next(ctx context.Context) (T, error) {
	var zero T

	more, err := r.HasNext()
	if err != nil {
		return zero, err
	}
	if !more {
		return zero, ErrExhausted
	}

	start := r.cur.offset
	rec := r.newRecord()
	_, wantRaw := any(rec).(RawSetter)
	if wantRaw {
		r.cur.rec = &bytes.Buffer{}
		defer func() { r.cur.rec = nil }()
	}

	if err := rec.Read(ctx, r.proto); err != nil {
		return zero, &DecodeError{Offset: start, Err: err}
	}
	if wantRaw {
		any(rec).(RawSetter).SetRaw(r.cur.rec.Bytes())
	}
	return rec, nil
}

// Offset returns the number of bytes consumed so far.
func (r *Reader[T]) Offset() int64 { return r.cur.offset }

// All returns the remaining records as a sequence. Iteration stops after
// the first error, which is yielded with the zero value of T.
func (r *Reader[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			more, err := r.HasNext()
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !more {
				return
			}
			rec, err := r.Next(ctx)
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

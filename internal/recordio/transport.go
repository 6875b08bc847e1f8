package recordio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"math"
)

var errReadOnly = errors.New("recordio: transport is read-only")

// cursor is a read-only thrift.TTransport over the reader's lookahead buffer.
// It counts consumed bytes and, while recording, keeps a copy of them.
type cursor struct {
	r      *bufio.Reader
	offset int64
	rec    *bytes.Buffer
}

func (c *cursor) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.offset += int64(n)
	if c.rec != nil && n > 0 {
		c.rec.Write(p[:n])
	}
	return n, err
}

func (c *cursor) Write([]byte) (int, error) { return 0, errReadOnly }
func (c *cursor) Close() error { return nil }
func (c *cursor) Flush(context.Context) error { return nil }
func (c *cursor) RemainingBytes() uint64 { return math.MaxUint64 }
func (c *cursor) Open() error { return nil }
func (c *cursor) IsOpen() bool { return true }

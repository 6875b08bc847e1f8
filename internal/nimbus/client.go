// Package nimbus submits topologies to a Storm cluster through the Nimbus
// Thrift service: the topology jar is uploaded in chunks, then the topology
// is submitted with its JSON configuration.
package nimbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/dustin/go-humanize"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
)

const (
	// DefaultPort is Nimbus's Thrift port when nimbus.thrift.port is unset.
	DefaultPort = 6627
	// DefaultChunkSize is the jar upload chunk size.
	DefaultChunkSize = 256 << 10
)

var authorizationOnly = map[int16]string{1: "AuthorizationException"}

var submitExceptions = map[int16]string{
	1: "AlreadyAliveException",
	2: "InvalidTopologyException",
	3: "AuthorizationException",
}

// Address picks the Nimbus endpoint from conf: the first of nimbus.seeds,
// else nimbus.host, else localhost, on nimbus.thrift.port.
func Address(conf *stormconf.Map) string {
	host := "localhost"
	if seeds, ok := conf.Strings(stormconf.NimbusSeeds); ok && len(seeds) > 0 && seeds[0] != "" {
		host = seeds[0]
	} else if h, ok := conf.String(stormconf.NimbusHost); ok && h != "" {
		host = h
	}
	port, ok := conf.Int(stormconf.NimbusThriftPort)
	if !ok || port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Client calls the Nimbus service.
type Client struct {
	client    thrift.TClient
	transport thrift.TTransport
	chunkSize int
}

// Dial opens a framed binary-protocol connection to addr.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conf := &thrift.TConfiguration{
		ConnectTimeout: timeout,
		SocketTimeout:  timeout,
	}
	transport := thrift.NewTFramedTransportConf(thrift.NewTSocketConf(addr, conf), conf)
	if err := transport.Open(); err != nil {
		return nil, fmt.Errorf("connect to nimbus at %s: %w", addr, err)
	}
	factory := thrift.NewTBinaryProtocolFactoryConf(conf)
	c := newClient(thrift.NewTStandardClient(factory.GetProtocol(transport), factory.GetProtocol(transport)))
	c.transport = transport
	return c, nil
}

func newClient(tc thrift.TClient) *Client {
	return &Client{client: tc, chunkSize: DefaultChunkSize}
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}

func (c *Client) call(ctx context.Context, method string, args *callArgs, result *callResult) error {
	if _, err := c.client.Call(ctx, method, args, result); err != nil {
		return fmt.Errorf("nimbus %s: %w", method, err)
	}
	return result.Err()
}

// BeginFileUpload reserves an upload location on Nimbus.
func (c *Client) BeginFileUpload(ctx context.Context) (string, error) {
	result := newResult(authorizationOnly)
	if err := c.call(ctx, "beginFileUpload", newArgs("beginFileUpload"), result); err != nil {
		return "", err
	}
	return result.success, nil
}

// UploadChunk appends chunk to the upload at location.
func (c *Client) UploadChunk(ctx context.Context, location string, chunk []byte) error {
	args := newArgs("uploadChunk", stringArg(1, "location", location), binaryArg(2, "chunk", chunk))
	return c.call(ctx, "uploadChunk", args, newResult(authorizationOnly))
}

// FinishFileUpload completes the upload at location.
func (c *Client) FinishFileUpload(ctx context.Context, location string) error {
	args := newArgs("finishFileUpload", stringArg(1, "location", location))
	return c.call(ctx, "finishFileUpload", args, newResult(authorizationOnly))
}

// SubmitTopology starts topo on the cluster under name.
func (c *Client) SubmitTopology(ctx context.Context, name, jarLocation, jsonConf string, topo structWriter) error {
	args := newArgs("submitTopology",
		stringArg(1, "name", name),
		stringArg(2, "uploadedJarLocation", jarLocation),
		stringArg(3, "jsonConf", jsonConf),
		structArg(4, "topology", topo),
	)
	return c.call(ctx, "submitTopology", args, newResult(submitExceptions))
}

// UploadJar streams r to Nimbus and returns the location it was stored at.
func (c *Client) UploadJar(ctx context.Context, r io.Reader) (string, error) {
	location, err := c.BeginFileUpload(ctx)
	if err != nil {
		return "", err
	}

	buf := make([]byte, c.chunkSize)
	var total uint64
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if err := c.UploadChunk(ctx, location, buf[:n]); err != nil {
				return "", err
			}
			total += uint64(n)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read topology jar: %w", err)
		}
	}

	if err := c.FinishFileUpload(ctx, location); err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Info("Uploaded topology jar.", "location", location, "size", humanize.IBytes(total))
	return location, nil
}

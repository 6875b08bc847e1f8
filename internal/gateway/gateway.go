// Package gateway submits topologies through a submission gateway reachable
// over socket.io. The launcher emits one submit event carrying the topology
// and its configuration, then waits for the gateway's verdict.
package gateway

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// Event names of the gateway protocol.
const (
	EventSubmit   = "submit_topology"
	EventAccepted = "topology_submitted"
	EventRejected = "topology_rejected"
)

// DefaultTimeout bounds one submission when none is configured.
const DefaultTimeout = 30 * time.Second

// ErrNoURL is returned when petrel.gateway.url is unset.
var ErrNoURL = errors.New("gateway url not configured (" + stormconf.PetrelGatewayURL + ")")

// RejectedError is the gateway refusing a topology.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "gateway rejected topology: " + e.Reason
}

// Submitter implements session.RemoteSubmitter against a gateway.
type Submitter struct {
	timeout            time.Duration
	insecureSkipVerify bool
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithTimeout bounds connecting plus waiting for the verdict.
func WithTimeout(d time.Duration) Option {
	return func(s *Submitter) { s.timeout = d }
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() Option {
	return func(s *Submitter) { s.insecureSkipVerify = true }
}

// NewSubmitter returns a gateway Submitter.
func NewSubmitter(opts ...Option) *Submitter {
	s := &Submitter{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Payload is the body of the submit event.
type Payload map[string]any

// BuildPayload assembles the submit event for topo. The topology travels as
// base64 of its binary encoding and the configuration as a plain object.
func BuildPayload(name string, conf *stormconf.Map, topo *topology.Topology) Payload {
	p := Payload{
		"name":     name,
		"conf":     conf.ToMap(),
		"topology": base64.StdEncoding.EncodeToString(topo.Raw()),
	}
	if user, ok := conf.String(stormconf.PetrelUser); ok {
		p["user"] = user
	}
	return p
}

// outcome is passed from event handlers to Submit.
type outcome struct {
	err error
}

func (s *Submitter) Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error {
	rawURL, ok := conf.String(stormconf.PetrelGatewayURL)
	if !ok || rawURL == "" {
		return ErrNoURL
	}
	namespace, _ := conf.String(stormconf.PetrelGatewayNamespace)
	if namespace == "" {
		namespace = "/"
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse gateway URL: %w", err)
	}

	logger := ctxlog.FromContext(ctx).With("gateway", parsedURL.Host, "namespace", namespace)
	logger.Debug("Gateway submission started.")
	defer logger.Debug("Gateway submission finished.")

	var isConnected atomic.Bool
	done := make(chan outcome, 1)
	report := func(o outcome) {
		select {
		case done <- o:
		default:
		}
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	if s.insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)
	defer func() {
		logger.Debug("Disconnecting socket client")
		io.Disconnect()
	}()

	payload := BuildPayload(name, conf, topo)

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Connected to gateway, submitting topology.", "sid", io.Id(), "name", name, "size", humanize.IBytes(uint64(len(topo.Raw()))))
		io.Emit(EventSubmit, map[string]any(payload))
	})

	io.On(types.EventName("connect_error"), func(errs ...any) {
		report(outcome{err: connectError(errs)})
	})

	io.On(types.EventName(EventAccepted), func(...any) {
		report(outcome{})
	})

	io.On(types.EventName(EventRejected), func(data ...any) {
		report(outcome{err: &RejectedError{Reason: reason(data)}})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isConnected.Load() {
			return fmt.Errorf("timed out after connecting while waiting for event '%s'", EventAccepted)
		}
		return errors.New("timed out while waiting for initial connection")
	case res := <-done:
		if res.err == nil {
			logger.Info("Topology accepted by gateway.", "name", name)
		}
		return res.err
	}
}

func connectError(errs []any) error {
	if len(errs) > 0 {
		if err, ok := errs[0].(error); ok {
			return fmt.Errorf("connect to gateway: %w", err)
		}
		return fmt.Errorf("connect to gateway: %v", errs[0])
	}
	return errors.New("connect to gateway failed")
}

// reason extracts a rejection reason from the event data, which is either a
// string or an object with a "reason" member.
func reason(data []any) string {
	if len(data) == 0 {
		return "no reason given"
	}
	switch v := data[0].(type) {
	case string:
		return v
	case map[string]any:
		if r, ok := v["reason"].(string); ok {
			return r
		}
	}
	return fmt.Sprint(data[0])
}

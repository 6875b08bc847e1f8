package nimbus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
	"github.com/specialistvlad/petrelgo/internal/stormconf"
	"github.com/specialistvlad/petrelgo/internal/topology"
)

// ErrNoJar is returned when no topology jar was configured. Nimbus refuses
// submissions without uploaded code.
var ErrNoJar = errors.New("no topology jar configured")

// Submitter implements session.RemoteSubmitter against Nimbus.
type Submitter struct {
	jarPath string
	timeout time.Duration
	dial    func(addr string, timeout time.Duration) (*Client, error)
}

// NewSubmitter returns a Submitter that uploads the jar at jarPath. timeout
// bounds connecting and each socket operation.
func NewSubmitter(jarPath string, timeout time.Duration) *Submitter {
	return &Submitter{jarPath: jarPath, timeout: timeout, dial: Dial}
}

func (s *Submitter) Submit(ctx context.Context, name string, conf *stormconf.Map, topo *topology.Topology) error {
	if s.jarPath == "" {
		return ErrNoJar
	}
	addr := Address(conf)
	logger := ctxlog.FromContext(ctx).With("nimbus", addr)

	jsonConf, err := conf.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode topology configuration: %w", err)
	}

	jar, err := os.Open(s.jarPath)
	if err != nil {
		return fmt.Errorf("open topology jar: %w", err)
	}
	defer jar.Close()

	client, err := s.dial(addr, s.timeout)
	if err != nil {
		return err
	}
	defer client.Close()

	logger.Info("Uploading topology jar.", "jar", s.jarPath)
	location, err := client.UploadJar(ctx, jar)
	if err != nil {
		return err
	}

	if err := client.SubmitTopology(ctx, name, location, string(jsonConf), topo); err != nil {
		return err
	}
	logger.Info("Topology submitted to nimbus.", "name", name)
	return nil
}

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/specialistvlad/petrelgo/internal/resource"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// Target is the remote topology name. Empty runs the topology locally.
	Target string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int

	// ResourceDir is searched for bundle resources before the embedded bundle.
	ResourceDir string
	// Bundle is a jar or zip searched after the embedded bundle.
	Bundle string
	// ObjectStore is searched last when its endpoint is set.
	ObjectStore resource.ObjectStoreConfig
	// Overlays are operator configuration files merged after the submitter
	// document.
	Overlays []string

	// Jar is uploaded to Nimbus on remote submission.
	Jar           string
	SubmitTimeout time.Duration

	// WorkDir is the working directory of local task processes.
	WorkDir          string
	LivenessInterval time.Duration
	ShutdownTimeout  time.Duration
}

func NewConfig(cfg Config) (*Config, error) {
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if cfg.ObjectStore.Endpoint != "" {
		if err := cfg.ObjectStore.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.LivenessInterval < 0 || cfg.ShutdownTimeout < 0 || cfg.SubmitTimeout < 0 {
		return nil, errors.New("durations cannot be negative")
	}
	return &cfg, nil
}

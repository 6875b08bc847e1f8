package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEnvFile keeps tests from picking up a stray .env in the package directory.
func noEnvFile(args ...string) []string {
	return append([]string{"-env-file", ""}, args...)
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("defaults run locally", func(t *testing.T) {
		t.Parallel()

		cfg, shouldExit, err := Parse(noEnvFile(), &bytes.Buffer{})

		require.NoError(t, err)
		assert.False(t, shouldExit)
		assert.Empty(t, cfg.Target)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.True(t, cfg.ObjectStore.UseSSL)
	})

	t.Run("positional target and flags", func(t *testing.T) {
		t.Parallel()

		cfg, _, err := Parse(noEnvFile(
			"-log-level", "DEBUG",
			"-log-format", "json",
			"-overlay", "a.yaml",
			"-overlay", "b.toml",
			"-submit-timeout", "45s",
			"-bundle-s3-endpoint", "minio:9000",
			"-bundle-s3-bucket", "topologies",
			"wordcount",
		), &bytes.Buffer{})

		require.NoError(t, err)
		assert.Equal(t, "wordcount", cfg.Target)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, []string{"a.yaml", "b.toml"}, cfg.Overlays)
		assert.Equal(t, 45*time.Second, cfg.SubmitTimeout)
		assert.Equal(t, "topologies", cfg.ObjectStore.Bucket)
	})

	t.Run("options after the topology name", func(t *testing.T) {
		t.Parallel()

		cfg, _, err := Parse(noEnvFile("wordcount", "-jar", "x.jar", "-log-level", "warn"), &bytes.Buffer{})

		require.NoError(t, err)
		assert.Equal(t, "wordcount", cfg.Target)
		assert.Equal(t, "x.jar", cfg.Jar)
		assert.Equal(t, "warn", cfg.LogLevel)
	})

	t.Run("help exits cleanly", func(t *testing.T) {
		t.Parallel()

		out := &bytes.Buffer{}
		cfg, shouldExit, err := Parse([]string{"-h"}, out)

		require.NoError(t, err)
		assert.True(t, shouldExit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
		assert.Contains(t, out.String(), "TOPOLOGY_NAME")
	})

	errorCases := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{name: "unknown flag", args: []string{"-nope"}, wantMsg: "flag provided but not defined"},
		{name: "two targets", args: []string{"a", "b"}, wantMsg: "at most one topology name"},
		{name: "two targets around an option", args: []string{"a", "-jar", "x.jar", "b"}, wantMsg: "got 2 arguments"},
		{name: "bad level", args: []string{"-log-level", "loud"}, wantMsg: "invalid log-level"},
		{name: "bad format", args: []string{"-log-format", "xml"}, wantMsg: "invalid log format"},
		{name: "bucketless object store", args: []string{"-bundle-s3-endpoint", "minio:9000"}, wantMsg: "bucket"},
		{name: "negative duration", args: []string{"-shutdown-timeout", "-1s"}, wantMsg: "negative"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, shouldExit, err := Parse(noEnvFile(tc.args...), &bytes.Buffer{})

			require.Error(t, err)
			assert.False(t, shouldExit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tc.wantMsg)
		})
	}
}

// The tests below mutate the process environment and cannot run in parallel.

func TestParse_EnvironmentFallback(t *testing.T) {
	t.Setenv("PETREL_LOG_LEVEL", "warn")
	t.Setenv("PETREL_JAR", "/opt/topology.jar")
	t.Setenv("PETREL_OVERLAY", "ops.yaml, site.hcl,")
	t.Setenv("PETREL_HEALTHCHECK_PORT", "8081")

	cfg, _, err := Parse(noEnvFile("-jar", "cli.jar"), &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "cli.jar", cfg.Jar, "command line wins over the environment")
	assert.Equal(t, []string{"ops.yaml", "site.hcl"}, cfg.Overlays)
	assert.Equal(t, 8081, cfg.HealthcheckPort)
}

func TestParse_InvalidEnvironmentValue(t *testing.T) {
	t.Setenv("PETREL_LIVENESS_INTERVAL", "soon")

	_, _, err := Parse(noEnvFile(), &bytes.Buffer{})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "PETREL_LIVENESS_INTERVAL")
}

func TestParse_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "launcher.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PETREL_WORK_DIR=/srv/topology\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PETREL_WORK_DIR") })

	cfg, _, err := Parse([]string{"-env-file", envFile}, &bytes.Buffer{})

	require.NoError(t, err)
	assert.Equal(t, "/srv/topology", cfg.WorkDir)
}

func TestParse_MissingExplicitEnvFile(t *testing.T) {
	_, _, err := Parse([]string{"-env-file", filepath.Join(t.TempDir(), "absent.env")}, &bytes.Buffer{})

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Contains(t, exitErr.Message, "load env file")
}

func TestEnvName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "PETREL_BUNDLE_S3_SECRET_KEY", EnvName("bundle-s3-secret-key"))
	assert.Equal(t, "PETREL_OVERLAY", EnvName("overlay"))
}

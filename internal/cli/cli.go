package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/specialistvlad/petrelgo/internal/app"
	"github.com/specialistvlad/petrelgo/internal/resource"
)

// EnvPrefix prefixes the environment variables that stand in for unset flags.
const EnvPrefix = "PETREL_"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("petrel", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Petrel - launches a packaged Storm topology.

Usage:
  petrel [options] [TOPOLOGY_NAME]

Options may appear before or after TOPOLOGY_NAME.

Arguments:
  TOPOLOGY_NAME
    Submit the bundled topology to the cluster under this name. Without it,
    the topology runs in-process until interrupted.

Every option may also be set with a PETREL_<NAME> environment variable,
e.g. PETREL_LOG_LEVEL=debug. PETREL_OVERLAY takes a comma-separated list.

Options:
`)
		flagSet.PrintDefaults()
	}

	var overlays stringList
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	envFileFlag := flagSet.String("env-file", ".env", "File of KEY=VALUE lines loaded into the environment before options are resolved.")
	resourceDirFlag := flagSet.String("resource-dir", "", "Directory searched for bundle resources before the embedded bundle.")
	bundleFlag := flagSet.String("bundle", "", "Jar or zip archive searched for bundle resources after the embedded bundle.")
	s3EndpointFlag := flagSet.String("bundle-s3-endpoint", "", "Object store endpoint searched last for bundle resources.")
	s3BucketFlag := flagSet.String("bundle-s3-bucket", "", "Object store bucket holding the bundle.")
	s3PrefixFlag := flagSet.String("bundle-s3-prefix", "", "Key prefix of the bundle inside the bucket.")
	s3AccessKeyFlag := flagSet.String("bundle-s3-access-key", "", "Object store access key.")
	s3SecretKeyFlag := flagSet.String("bundle-s3-secret-key", "", "Object store secret key.")
	s3RegionFlag := flagSet.String("bundle-s3-region", "", "Object store region.")
	s3SSLFlag := flagSet.Bool("bundle-s3-ssl", true, "Use TLS for the object store.")
	flagSet.Var(&overlays, "overlay", "Configuration file merged over the bundled configuration. Repeatable.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	jarFlag := flagSet.String("jar", "", "Topology jar uploaded on Nimbus submission.")
	submitTimeoutFlag := flagSet.Duration("submit-timeout", 0, "Timeout of a remote submission. 0 uses the submitter's default.")
	workDirFlag := flagSet.String("work-dir", "", "Working directory of local task processes.")
	livenessFlag := flagSet.Duration("liveness-interval", 0, "How often a local run reports that it is alive. 0 uses the default.")
	shutdownFlag := flagSet.Duration("shutdown-timeout", 0, "Bound on local topology teardown. 0 uses the default.")

	// flag stops at the first positional argument, so options after the
	// topology name are parsed in a further pass.
	var positional []string
	for rest := args; ; {
		if err := flagSet.Parse(rest); err != nil {
			if err == flag.ErrHelp {
				return nil, true, nil
			}
			return nil, false, &ExitError{Code: 2, Message: err.Error()}
		}
		if flagSet.NArg() == 0 {
			break
		}
		positional = append(positional, flagSet.Arg(0))
		rest = flagSet.Args()[1:]
	}
	slog.Debug("Arguments parsed successfully.")

	if len(positional) > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected at most one topology name, got %d arguments", len(positional))}
	}
	var target string
	if len(positional) == 1 {
		target = positional[0]
	}

	set := map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := loadEnvFile(*envFileFlag, set["env-file"]); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	// Flags given on the command line win over the environment.
	var envErr error
	flagSet.VisitAll(func(f *flag.Flag) {
		if set[f.Name] || f.Name == "env-file" || envErr != nil {
			return
		}
		v, ok := os.LookupEnv(EnvName(f.Name))
		if !ok {
			return
		}
		if f.Name == "overlay" {
			for _, o := range strings.Split(v, ",") {
				if o = strings.TrimSpace(o); o != "" {
					overlays = append(overlays, o)
				}
			}
			return
		}
		if err := f.Value.Set(v); err != nil {
			envErr = fmt.Errorf("invalid value %q for %s: %w", v, EnvName(f.Name), err)
		}
	})
	if envErr != nil {
		return nil, false, &ExitError{Code: 2, Message: envErr.Error()}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		Target:          target,
		LogFormat:       strings.ToLower(*logFormatFlag),
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		ResourceDir:     *resourceDirFlag,
		Bundle:          *bundleFlag,
		ObjectStore: resource.ObjectStoreConfig{
			Endpoint:  *s3EndpointFlag,
			Bucket:    *s3BucketFlag,
			Prefix:    *s3PrefixFlag,
			AccessKey: *s3AccessKeyFlag,
			SecretKey: *s3SecretKeyFlag,
			UseSSL:    *s3SSLFlag,
			Region:    *s3RegionFlag,
		},
		Overlays:         overlays,
		Jar:              *jarFlag,
		SubmitTimeout:    *submitTimeoutFlag,
		WorkDir:          *workDirFlag,
		LivenessInterval: *livenessFlag,
		ShutdownTimeout:  *shutdownFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "target", config.Target)
	return config, false, nil
}

// EnvName is the environment variable consulted for an unset flag.
func EnvName(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		slog.Debug("Environment file loaded.", "path", path)
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}

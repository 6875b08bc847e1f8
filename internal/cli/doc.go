// Package cli turns command-line flags, PETREL_* environment variables and an
// optional env file into an app.Config, and carries the process exit code of
// usage errors.
package cli

// Package app wires the launcher's collaborators: resource providers, the
// remote submitters, the local cluster, metrics and the health check server.
// It owns one launch's lifecycle, independent of the CLI entrypoint.
package app

package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/petrelgo/internal/app"
	"github.com/specialistvlad/petrelgo/internal/cli"
)

//go:embed all:resources
var bundle embed.FS

// main is the entrypoint for the petrel launcher.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// The real main function handles errors and exit codes.
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(outW io.Writer, args []string) error {
	return runBundle(outW, args, bundle)
}

func runBundle(outW io.Writer, args []string, bundle fs.FS) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	petrel, err := app.NewApp(outW, appConfig, bundle)
	if err != nil {
		return fmt.Errorf("application startup failed: %w", err)
	}
	defer petrel.Close()

	return petrel.Run(ctx)
}

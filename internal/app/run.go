package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/specialistvlad/petrelgo/internal/ctxlog"
)

// Run executes one launch. A local run lasts until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	launchID := uuid.NewString()
	a.ctx = ctxlog.WithLogger(ctx, a.logger.With("launch_id", launchID))
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("App.Run method started.")

	a.healthCheckServer()
	defer a.closeHealthCheckServer()

	mode := "local"
	if a.config.Target != "" {
		mode = "remote"
	}
	logger.Info("🚀 Launching topology.", "mode", mode, "target", a.config.Target)

	if err := a.launcher.Launch(a.ctx, a.config.Target); err != nil {
		return fmt.Errorf("launch failed: %w", err)
	}

	logger.Info("🏁 Launch finished.")
	return nil
}

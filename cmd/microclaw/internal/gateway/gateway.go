package gateway

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgi/microclaw/cmd/microclaw/internal"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
)

func gatewayCmd(debug bool) error {
	cfg, err := internal.LoadConfig(debug)
	if err != nil {
		return err
	}
	prepareConfig(cfg)

	rt, err := internal.NewRuntime(cfg)
	if err != nil {
		return err
	}

	enabled := rt.Channels.EnabledChannels()
	if len(enabled) == 0 {
		rt.Shutdown()
		return fmt.Errorf("no channels enabled; enable telegram or discord in %s", internal.GetConfigPath())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.Channels.StartAll(ctx); err != nil {
		rt.Shutdown()
		return fmt.Errorf("failed to start channels: %w", err)
	}

	logger.InfoCF("gateway", "Channel status", rt.Channels.GetStatus())

	fmt.Printf("%s Gateway running with channels: %v\n", internal.Logo, enabled)
	fmt.Println("Press Ctrl+C to stop")

	done := make(chan error, 1)
	go func() { done <- rt.Loop.Run(ctx) }()

	<-ctx.Done()
	fmt.Println("\nShutting down...")

	if err := rt.Shutdown(); err != nil {
		logger.ErrorCF("gateway", "Shutdown finished with errors", map[string]any{
			"event": "gateway.shutdown_failed",
			"error": err.Error(),
		})
	}
	<-done
	logger.DisableFileLogging()
	fmt.Println("✓ Gateway stopped")
	return nil
}

// prepareConfig disables the interactive CLI adapter, which needs a
// terminal the gateway does not own.
func prepareConfig(cfg *config.Config) {
	cfg.Channels.CLI.Enabled = false
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/georgi/microclaw/cmd/microclaw/internal"
	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/channels"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
)

func agentCmd(ctx context.Context, message, model string, debug bool) error {
	cfg, err := internal.LoadConfig(debug)
	if err != nil {
		return err
	}
	prepareConfig(cfg, model)

	rt, err := internal.NewRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Shutdown(); err != nil {
			logger.WarnCF("agent", "Shutdown finished with errors", map[string]any{"error": err.Error()})
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if message != "" {
		reply := rt.Loop.ProcessDirect(ctx, oneShotMessage(message))
		fmt.Printf("\n%s %s\n", internal.Logo, reply)
		return nil
	}

	return interactive(ctx, rt)
}

func interactive(ctx context.Context, rt *internal.Runtime) error {
	if err := rt.Channels.StartAll(ctx); err != nil {
		return err
	}

	ch, ok := rt.Channels.GetChannel(bus.ChannelCLI)
	if !ok {
		return errors.New("cli channel is not registered")
	}
	cli, ok := ch.(*channels.CLIChannel)
	if !ok || cli.Done() == nil {
		return errors.New("cli channel failed to start")
	}

	fmt.Printf("%s Interactive mode (Ctrl+C to exit)\n\n", internal.Logo)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go rt.Loop.Run(loopCtx)

	select {
	case <-cli.Done():
	case <-ctx.Done():
	}
	fmt.Println("Goodbye!")
	return nil
}

// prepareConfig restricts the runtime to the terminal adapter.
func prepareConfig(cfg *config.Config, model string) {
	cfg.Channels.Telegram.Enabled = false
	cfg.Channels.Discord.Enabled = false
	cfg.Channels.CLI.Enabled = true
	if model = strings.TrimSpace(model); model != "" {
		cfg.Agent.Model = model
	}
}

func oneShotMessage(content string) bus.InboundMessage {
	return bus.InboundMessage{
		Channel:   bus.ChannelCLI,
		SenderID:  "local",
		ChatID:    "cli",
		Content:   content,
		Timestamp: time.Now(),
	}
}

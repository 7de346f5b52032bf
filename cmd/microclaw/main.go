package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/georgi/microclaw/cmd/microclaw/internal"
	"github.com/georgi/microclaw/cmd/microclaw/internal/agent"
	"github.com/georgi/microclaw/cmd/microclaw/internal/gateway"
	"github.com/georgi/microclaw/cmd/microclaw/internal/onboard"
	"github.com/georgi/microclaw/cmd/microclaw/internal/transcribe"
	"github.com/georgi/microclaw/cmd/microclaw/internal/version"
)

func NewMicroclawCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "microclaw",
		Short: fmt.Sprintf("%s microclaw - chat bridge for a workspace agent", internal.Logo),
		Long: "microclaw connects Telegram, Discord and a local prompt to one agent that works\n" +
			"inside a sandboxed workspace.",
		SilenceUsage: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			internal.SetConfigPath(configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.json (default $MICROCLAW_HOME/config.json)")

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		agent.NewAgentCommand(),
		gateway.NewGatewayCommand(),
		transcribe.NewTranscribeCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	if err := NewMicroclawCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

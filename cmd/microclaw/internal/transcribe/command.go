package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/georgi/microclaw/cmd/microclaw/internal"
	"github.com/georgi/microclaw/pkg/voice"
)

func NewTranscribeCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file with the local whisper.cpp install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig(debug)
			if err != nil {
				return err
			}
			whisper := voice.NewWhisperCpp(voice.Options{
				BinaryPath: cfg.Voice.WhisperPath,
				ModelPath:  cfg.Voice.ModelPath,
				Timeout:    time.Duration(cfg.Voice.TimeoutSec) * time.Second,
			})
			return transcribe(cmd.Context(), cmd.OutOrStdout(), whisper, args[0])
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func transcribe(ctx context.Context, out io.Writer, t voice.Transcriber, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot read audio file: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res := t.Transcribe(ctx, path)
	if res.OK() {
		fmt.Fprintln(out, res.Text)
		return nil
	}

	if res.MissingDependency() {
		fmt.Fprintf(out, "%s\n\n", voice.InstallInstructions)
	}
	return errors.New(res.Message())
}

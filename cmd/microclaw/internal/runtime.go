package internal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/georgi/microclaw/pkg/agent"
	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/channels"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/session"
	"github.com/georgi/microclaw/pkg/tools"
	"github.com/georgi/microclaw/pkg/transcript"
	"github.com/georgi/microclaw/pkg/voice"
)

const shutdownTimeout = 10 * time.Second

// Runtime is the wired set of components shared by the gateway and agent
// commands.
type Runtime struct {
	Config   *config.Config
	Bus      *bus.MessageBus
	Sessions session.Store
	Client   *agent.ClaudeClient
	Channels *channels.Manager
	Loop     *agent.Loop
}

func NewRuntime(cfg *config.Config) (*Runtime, error) {
	if err := os.MkdirAll(cfg.WorkspacePath(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	sessions, err := session.OpenSQLite(cfg.SessionPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if known, err := sessions.List(context.Background()); err == nil {
		logger.InfoCF("session", "Session store opened", map[string]any{
			"path":          cfg.SessionPath(),
			"conversations": len(known),
		})
	}

	registry, err := tools.NewSandboxRegistry(tools.ExecOptions{
		Timeout:      time.Duration(cfg.Tools.Exec.TimeoutSec) * time.Second,
		DenyPatterns: cfg.Tools.Exec.DenyPatterns,
	})
	if err != nil {
		sessions.Close()
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	client := agent.NewClaudeClient(agent.ClaudeOptions{
		APIKey:        cfg.Agent.APIKey,
		BaseURL:       cfg.Agent.BaseURL,
		Model:         cfg.Agent.Model,
		MaxTokens:     cfg.Agent.MaxTokens,
		MaxIterations: cfg.Agent.MaxToolIterations,
		Tools:         registry,
		Sessions:      sessions,
	})
	if cfg.Agent.APIKey == "" {
		logger.WarnCF("agent", "No API key configured", map[string]any{
			"event": "agent.api_key_missing",
			"hint":  "set agent.api_key or ANTHROPIC_API_KEY",
		})
	}

	msgBus := bus.NewMessageBus()
	manager := channels.NewManagerFromConfig(cfg, msgBus, NewTranscriber(cfg.Voice))

	var transcriptLog agent.TranscriptLog
	if cfg.TranscriptLog.Enabled {
		transcriptLog = transcript.New(transcript.Options{
			Enabled:  true,
			Path:     cfg.TranscriptPath(),
			MaxBytes: cfg.TranscriptLog.MaxBytes,
			MaxFiles: cfg.TranscriptLog.MaxFiles,
		})
	}

	return &Runtime{
		Config:   cfg,
		Bus:      msgBus,
		Sessions: sessions,
		Client:   client,
		Channels: manager,
		Loop:     agent.NewLoop(cfg, msgBus, client, manager, transcriptLog),
	}, nil
}

// NewTranscriber returns nil when voice support is disabled.
func NewTranscriber(cfg config.VoiceConfig) voice.Transcriber {
	if !cfg.Enabled {
		return nil
	}

	whisper := voice.NewWhisperCpp(voice.Options{
		BinaryPath: cfg.WhisperPath,
		ModelPath:  cfg.ModelPath,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
	})
	if !whisper.IsAvailable() {
		logger.WarnCF("voice", "whisper.cpp is not fully installed; voice notes will not be transcribed", map[string]any{
			"event": "voice.whisper.unavailable",
		})
	}
	return whisper
}

// Shutdown cancels in-flight turns, stops the adapters and releases the
// session store.
func (r *Runtime) Shutdown() error {
	r.Client.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := r.Channels.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}
	r.Bus.Close()
	if err := r.Sessions.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

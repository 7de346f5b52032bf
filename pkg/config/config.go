package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/georgi/microclaw/internal/infra"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Agent            AgentConfig         `json:"agent"`
	Workspace        string              `json:"workspace" env:"MICROCLAW_WORKSPACE"`
	Channels         ChannelsConfig      `json:"channels"`
	Tools            ToolsConfig         `json:"tools"`
	SummaryPrompt    SummaryPromptConfig `json:"summary_prompt"`
	TranscriptLog    TranscriptLogConfig `json:"transcript_log"`
	Voice            VoiceConfig         `json:"voice"`
	SessionStorePath string              `json:"session_store_path" env:"MICROCLAW_SESSION_STORE_PATH"`
	Log              LogConfig           `json:"log"`
}

type AgentConfig struct {
	Model             string `json:"model" env:"MICROCLAW_AGENT_MODEL"`
	APIKey            string `json:"api_key" env:"ANTHROPIC_API_KEY"`
	BaseURL           string `json:"base_url" env:"ANTHROPIC_BASE_URL"`
	MaxTokens         int    `json:"max_tokens"`
	MaxToolIterations int    `json:"max_tool_iterations"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	CLI      CLIConfig      `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token" env:"MICROCLAW_TELEGRAM_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled"`
	Token     string              `json:"token" env:"MICROCLAW_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from"`
}

type CLIConfig struct {
	Enabled     bool                `json:"enabled"`
	HistoryFile string              `json:"history_file"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
}

type ExecToolConfig struct {
	TimeoutSec   int      `json:"timeout_sec"`
	DenyPatterns []string `json:"deny_patterns,omitempty"`
}

type ToolsConfig struct {
	Exec ExecToolConfig `json:"exec"`
}

// SummaryPromptConfig is the template behind the /summary command.
// {{workspace}} and {{request}} are substituted.
type SummaryPromptConfig struct {
	Enabled  bool   `json:"enabled"`
	Template string `json:"template"`
}

type TranscriptLogConfig struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path"`
	MaxBytes int64  `json:"max_bytes"`
	MaxFiles int    `json:"max_files"`
}

type VoiceConfig struct {
	Enabled     bool   `json:"enabled"`
	WhisperPath string `json:"whisper_path" env:"WHISPER_CPP_PATH"`
	ModelPath   string `json:"model_path" env:"WHISPER_CPP_MODEL"`
	TimeoutSec  int    `json:"timeout_sec"`
}

type LogConfig struct {
	Level string `json:"level" env:"MICROCLAW_LOG_LEVEL"`
	File  string `json:"file"`
}

const DefaultSummaryTemplate = "Workspace: {{workspace}}\n" +
	"Request: {{request}}\n" +
	"Provide a concise summary with key files and actionable insights."

func DefaultConfig() *Config {
	home := infra.ResolveHomeDir()

	return &Config{
		Agent: AgentConfig{
			Model:             "claude-sonnet-4-5",
			MaxTokens:         8192,
			MaxToolIterations: 20,
		},
		Workspace: filepath.Join(home, "workspace"),
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			Discord: DiscordConfig{
				AllowFrom: FlexibleStringSlice{},
			},
			CLI: CLIConfig{
				HistoryFile: filepath.Join(home, "data", "cli_history"),
				AllowFrom:   FlexibleStringSlice{"local"},
			},
		},
		Tools: ToolsConfig{
			Exec: ExecToolConfig{
				TimeoutSec: 60,
			},
		},
		SummaryPrompt: SummaryPromptConfig{
			Enabled:  true,
			Template: DefaultSummaryTemplate,
		},
		TranscriptLog: TranscriptLogConfig{
			Enabled:  false,
			Path:     filepath.Join(home, "data", "transcript.jsonl"),
			MaxBytes: 1_000_000,
			MaxFiles: 3,
		},
		Voice: VoiceConfig{
			Enabled:    true,
			TimeoutSec: 120,
		},
		SessionStorePath: filepath.Join(home, "data", "sessions.db"),
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig layers the JSON file at path over DefaultConfig, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) WorkspacePath() string {
	return infra.ExpandHome(c.Workspace)
}

func (c *Config) TranscriptPath() string {
	return infra.ExpandHome(c.TranscriptLog.Path)
}

func (c *Config) SessionPath() string {
	return infra.ExpandHome(c.SessionStorePath)
}

// RenderSummaryPrompt applies the summary template to a request. An empty
// template returns the request unchanged.
func (c *Config) RenderSummaryPrompt(request string) string {
	if strings.TrimSpace(c.SummaryPrompt.Template) == "" {
		return request
	}
	return strings.NewReplacer(
		"{{workspace}}", c.WorkspacePath(),
		"{{request}}", request,
	).Replace(c.SummaryPrompt.Template)
}

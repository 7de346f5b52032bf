package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/voice"
)

// Manager owns the enabled adapters and routes outbound messages to them.
// There is no outbound queue; Send calls the adapter directly.
type Manager struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{channels: make(map[string]Channel)}
}

// NewManagerFromConfig registers every adapter enabled in cfg.
// transcriber may be nil when voice support is off.
func NewManagerFromConfig(cfg *config.Config, msgBus *bus.MessageBus, transcriber voice.Transcriber) *Manager {
	m := NewManager()
	logger.InfoC("channels", "Initializing channel manager")

	if cfg.Channels.Telegram.Enabled {
		m.RegisterChannel(NewTelegramChannel(cfg.Channels.Telegram, msgBus, transcriber))
	}
	if cfg.Channels.Discord.Enabled {
		m.RegisterChannel(NewDiscordChannel(cfg.Channels.Discord, msgBus, transcriber))
	}
	if cfg.Channels.CLI.Enabled {
		m.RegisterChannel(NewCLIChannel(cfg.Channels.CLI, msgBus))
	}

	logger.InfoCF("channels", "Channel initialization completed", map[string]any{
		"enabled_channels": m.EnabledChannels(),
	})
	return m
}

func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// StartAll starts every adapter. A failing adapter is logged and skipped.
func (m *Manager) StartAll(ctx context.Context) error {
	names := m.EnabledChannels()
	if len(names) == 0 {
		logger.WarnC("channels", "No channels enabled")
		return nil
	}

	for _, name := range names {
		ch, _ := m.GetChannel(name)
		logger.InfoCF("channels", "Starting channel", map[string]any{"channel": name})
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]any{
				"event":   "channel." + name + ".start_failed",
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	for _, name := range m.EnabledChannels() {
		ch, _ := m.GetChannel(name)
		if err := ch.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]any{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}
	logger.InfoC("channels", "All channels stopped")
	return nil
}

// Send delivers msg through the adapter named by msg.Channel.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch, ok := m.GetChannel(msg.Channel)
	if !ok {
		return fmt.Errorf("channel %s not found", msg.Channel)
	}
	return ch.Send(ctx, msg)
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

func (m *Manager) GetStatus() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]any, len(m.channels))
	for name, ch := range m.channels {
		status[name] = map[string]any{
			"running": ch.IsRunning(),
			"typing":  ch.Capabilities().Typing,
		}
	}
	return status
}

func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

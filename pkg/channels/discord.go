package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/utils"
	"github.com/georgi/microclaw/pkg/voice"
)

const discordMaxMessageLength = 1800

const discordIntents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsDirectMessages |
	discordgo.IntentsMessageContent

// discordAPI is the slice of *discordgo.Session the adapter uses.
type discordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

type DiscordChannel struct {
	*BaseChannel
	token       string
	transcriber voice.Transcriber
	download    audioDownloader

	mu      sync.Mutex
	session *discordgo.Session
	api     discordAPI
	botID   string
	ctx     context.Context
}

func NewDiscordChannel(cfg config.DiscordConfig, msgBus *bus.MessageBus, transcriber voice.Transcriber) *DiscordChannel {
	return &DiscordChannel{
		BaseChannel: newUTF16BaseChannel(bus.ChannelDiscord, msgBus, cfg.AllowFrom),
		token:       strings.TrimSpace(cfg.Token),
		transcriber: transcriber,
		download:    voice.DownloadToTemp,
		ctx:         context.Background(),
	}
}

func (c *DiscordChannel) Capabilities() Capabilities {
	return Capabilities{Typing: true, MaxMessageLength: discordMaxMessageLength}
}

func (c *DiscordChannel) Start(ctx context.Context) error {
	if c.token == "" {
		logger.WarnCF("discord", "Discord channel enabled without a token; not starting", map[string]any{
			"event":  "channel.discord.misconfigured",
			"reason": "missing token",
		})
		return nil
	}
	c.warnOpenAllowList()

	session, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordIntents
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		c.handleMessage(c.baseContext(), m)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.api = session
	c.ctx = ctx
	if session.State != nil && session.State.User != nil {
		c.botID = session.State.User.ID
	}
	c.mu.Unlock()

	c.setRunning(true)
	logger.InfoCF("discord", "Discord bot connected", map[string]any{
		"event":   "channel.discord.start",
		"user_id": c.botID,
	})
	return nil
}

func (c *DiscordChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()

	c.setRunning(false)
	if session == nil {
		return nil
	}

	logger.InfoCF("discord", "Stopping Discord bot", map[string]any{"event": "channel.discord.stop"})
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (c *DiscordChannel) baseContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if !c.IsRunning() || api == nil {
		return errors.New("discord bot not running")
	}

	channelID := msg.ChatID
	if channelID == "" {
		return errors.New("channel ID is empty")
	}

	if msg.IsProgress() {
		c.signalTyping(ctx, channelID, func(ctx context.Context) error {
			return api.ChannelTyping(channelID, discordgo.WithContext(ctx))
		})
		return nil
	}

	replyTo := msg.ReplyTo
	return c.deliver(ctx, channelID, msg.Content, discordMaxMessageLength, func(ctx context.Context, chunk string) error {
		data := &discordgo.MessageSend{Content: chunk}
		if replyTo != "" {
			data.Reference = &discordgo.MessageReference{MessageID: replyTo, ChannelID: channelID}
		}
		if _, err := api.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx)); err != nil {
			return err
		}
		replyTo = ""
		return nil
	})
}

func (c *DiscordChannel) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	c.mu.Lock()
	botID := c.botID
	c.mu.Unlock()
	if botID != "" && m.Author.ID == botID {
		return
	}

	senderID := m.Author.ID
	if !c.IsAllowed(senderID) {
		logger.WarnCF("discord", "Message rejected by allowlist", map[string]any{
			"event":     "channel.discord.denied",
			"sender_id": senderID,
		})
		return
	}

	if !c.acceptsChannel(ctx, m.ChannelID) {
		return
	}

	content := strings.TrimSpace(m.Content)
	var attachments []bus.Attachment

	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		if utils.IsAudioFile(a.Filename, a.ContentType) {
			content = appendLine(content, c.transcribeAttachment(ctx, a))
			continue
		}
		attachments = append(attachments, bus.Attachment{
			Type:     attachmentTypeFor(a.ContentType),
			URL:      a.URL,
			MIMEType: a.ContentType,
			Size:     int64(a.Size),
			FileName: a.Filename,
		})
	}

	logger.DebugCF("discord", "Received message", map[string]any{
		"sender_id": senderID,
		"chat_id":   m.ChannelID,
		"preview":   utils.Truncate(content, 50),
	})

	metadata := map[string]string{
		bus.MetaMessageID: m.ID,
		"guild_id":        m.GuildID,
	}

	c.HandleMessage(senderID, m.ChannelID, content, attachments, metadata)
}

// acceptsChannel admits guild text channels, threads and DMs. A channel whose
// type cannot be looked up is admitted.
func (c *DiscordChannel) acceptsChannel(ctx context.Context, channelID string) bool {
	ch, err := c.lookupChannel(ctx, channelID)
	if err != nil || ch == nil {
		return true
	}
	switch ch.Type {
	case discordgo.ChannelTypeGuildText,
		discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeDM:
		return true
	}
	return false
}

func (c *DiscordChannel) lookupChannel(ctx context.Context, channelID string) (*discordgo.Channel, error) {
	c.mu.Lock()
	session, api := c.session, c.api
	c.mu.Unlock()

	if session != nil && session.State != nil {
		if ch, err := session.State.Channel(channelID); err == nil {
			return ch, nil
		}
	}
	if api == nil {
		return nil, errors.New("discord session not open")
	}
	return api.Channel(channelID, discordgo.WithContext(ctx))
}

func (c *DiscordChannel) transcribeAttachment(ctx context.Context, a *discordgo.MessageAttachment) string {
	const kind = "audio"

	path, err := c.download(ctx, a.URL, utils.AudioExtension(a.Filename, ".ogg"))
	if err != nil {
		logger.WarnCF("discord", "Failed to download audio attachment", map[string]any{
			"event":    "channel.discord.download_failed",
			"filename": a.Filename,
			"error":    err.Error(),
		})
		return voice.DescribeFailure(kind, 0, err.Error())
	}
	defer os.Remove(path)

	if c.transcriber == nil {
		return voice.DescribeFailure(kind, 0, "voice transcription is disabled")
	}
	return voice.InboundContent(kind, 0, c.transcriber.Transcribe(ctx, path), "")
}

func attachmentTypeFor(contentType string) bus.AttachmentType {
	switch ct := strings.ToLower(contentType); {
	case strings.HasPrefix(ct, "image/"):
		return bus.AttachmentImage
	case strings.HasPrefix(ct, "video/"):
		return bus.AttachmentVideo
	case strings.HasPrefix(ct, "audio/"):
		return bus.AttachmentAudio
	case ct == "application/pdf", strings.HasPrefix(ct, "text/"):
		return bus.AttachmentDocument
	}
	return bus.AttachmentFile
}

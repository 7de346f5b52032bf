package channels

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/utils"
	"github.com/georgi/microclaw/pkg/voice"
)

const (
	telegramMaxMessageLength = 4000
	telegramPollTimeout      = 30

	telegramFileUnavailable = "could not retrieve file from Telegram"
)

// telegramAPI is the slice of *telego.Bot the adapter uses.
type telegramAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error)
	FileDownloadURL(filepath string) string
}

type audioDownloader func(ctx context.Context, rawURL, ext string) (string, error)

type TelegramChannel struct {
	*BaseChannel
	token       string
	api         telegramAPI
	transcriber voice.Transcriber
	download    audioDownloader

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTelegramChannel builds the adapter. The bot itself is created on Start,
// so a missing token only disables the channel. transcriber may be nil.
func NewTelegramChannel(cfg config.TelegramConfig, msgBus *bus.MessageBus, transcriber voice.Transcriber) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: newUTF16BaseChannel(bus.ChannelTelegram, msgBus, cfg.AllowFrom),
		token:       strings.TrimSpace(cfg.Token),
		transcriber: transcriber,
		download:    voice.DownloadToTemp,
	}
}

func (c *TelegramChannel) Capabilities() Capabilities {
	return Capabilities{Typing: true, MaxMessageLength: telegramMaxMessageLength}
}

func (c *TelegramChannel) Start(ctx context.Context) error {
	if c.token == "" {
		logger.WarnCF("telegram", "Telegram channel enabled without a token; not starting", map[string]any{
			"event": "channel.telegram.misconfigured",
		})
		return nil
	}
	c.warnOpenAllowList()

	bot, err := telego.NewBot(c.token)
	if err != nil {
		return fmt.Errorf("failed to create telegram bot: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        telegramPollTimeout,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	c.mu.Lock()
	c.api = bot
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.setRunning(true)
	logger.InfoCF("telegram", "Telegram bot connected", map[string]any{
		"event":    "channel.telegram.start",
		"username": bot.Username(),
	})

	go func() {
		defer close(done)
		for update := range updates {
			if update.Message != nil {
				c.handleMessage(pollCtx, update.Message)
			}
		}
	}()

	return nil
}

func (c *TelegramChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	c.setRunning(false)
	if cancel == nil {
		return nil
	}

	logger.InfoCF("telegram", "Stopping Telegram bot", map[string]any{"event": "channel.telegram.stop"})
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *TelegramChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.Lock()
	api := c.api
	c.mu.Unlock()
	if !c.IsRunning() || api == nil {
		return errors.New("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID %q: %w", msg.ChatID, err)
	}

	if msg.IsProgress() {
		c.signalTyping(ctx, msg.ChatID, func(ctx context.Context) error {
			return api.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
		})
		return nil
	}

	replyTo, _ := strconv.Atoi(msg.ReplyTo)
	return c.deliver(ctx, msg.ChatID, msg.Content, telegramMaxMessageLength, func(ctx context.Context, chunk string) error {
		params := tu.Message(tu.ID(chatID), chunk)
		if replyTo != 0 {
			params.ReplyParameters = &telego.ReplyParameters{
				MessageID:                replyTo,
				AllowSendingWithoutReply: true,
			}
		}
		if _, err := api.SendMessage(ctx, params); err != nil {
			return err
		}
		replyTo = 0
		return nil
	})
}

func (c *TelegramChannel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}

	userID := strconv.FormatInt(user.ID, 10)
	senderID := userID
	if user.Username != "" {
		senderID = userID + "|" + user.Username
	}

	// checked before any download so denied senders cost nothing
	if !c.IsAllowed(senderID) {
		logger.WarnCF("telegram", "Message rejected by allowlist", map[string]any{
			"event":     "channel.telegram.denied",
			"sender_id": senderID,
		})
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	caption := strings.TrimSpace(message.Caption)

	var (
		content     string
		attachments []bus.Attachment
	)

	switch {
	case message.Voice != nil:
		content = c.transcribe(ctx, "voice", message.Voice.FileID, message.Voice.Duration, ".oga", caption)
	case message.Audio != nil:
		content = c.transcribe(ctx, "audio", message.Audio.FileID, message.Audio.Duration, ".mp3", caption)
	default:
		content = strings.TrimSpace(message.Text)
		if caption != "" {
			content = appendLine(content, caption)
		}

		if len(message.Photo) > 0 {
			photo := message.Photo[len(message.Photo)-1]
			attachments = append(attachments, fileAttachment(bus.Attachment{
				Type: bus.AttachmentImage,
				Size: int64(photo.FileSize),
			}, photo.FileID))
			if content == "" {
				content = "[image]"
			}
		}

		if doc := message.Document; doc != nil {
			attachments = append(attachments, fileAttachment(bus.Attachment{
				Type:     bus.AttachmentDocument,
				MIMEType: doc.MimeType,
				Size:     int64(doc.FileSize),
				FileName: doc.FileName,
			}, doc.FileID))
			if content == "" {
				content = fmt.Sprintf("[document: %s]", doc.FileName)
			}
		}
	}

	logger.DebugCF("telegram", "Received message", map[string]any{
		"sender_id": senderID,
		"chat_id":   chatID,
		"preview":   utils.Truncate(content, 50),
	})

	metadata := map[string]string{
		bus.MetaMessageID: strconv.Itoa(message.MessageID),
		"username":        user.Username,
		"first_name":      user.FirstName,
		"is_group":        strconv.FormatBool(message.Chat.Type != "private"),
	}

	c.HandleMessage(senderID, chatID, content, attachments, metadata)
}

// transcribe downloads a voice note or audio file and renders the outcome as
// message content. The downloaded file is removed before returning.
func (c *TelegramChannel) transcribe(ctx context.Context, kind, fileID string, duration int, defaultExt, caption string) string {
	file, err := c.api.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil || file == nil || file.FilePath == "" {
		fields := map[string]any{"event": "channel.telegram.file_unavailable", "kind": kind}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.WarnCF("telegram", "Failed to resolve audio file", fields)
		return voice.DescribeFailure(kind, duration, telegramFileUnavailable)
	}

	ext := utils.AudioExtension(file.FilePath, defaultExt)
	path, err := c.download(ctx, c.api.FileDownloadURL(file.FilePath), ext)
	if err != nil {
		logger.WarnCF("telegram", "Failed to download audio", map[string]any{
			"event": "channel.telegram.download_failed",
			"error": err.Error(),
		})
		return voice.DescribeFailure(kind, duration, err.Error())
	}
	defer os.Remove(path)

	if c.transcriber == nil {
		return voice.DescribeFailure(kind, duration, "voice transcription is disabled")
	}

	return voice.InboundContent(kind, duration, c.transcriber.Transcribe(ctx, path), caption)
}

// TelegramFileScheme prefixes attachment references that carry a Telegram
// file_id. Download URLs embed the bot token and never leave the adapter.
const TelegramFileScheme = "tg-file:"

func fileAttachment(att bus.Attachment, fileID string) bus.Attachment {
	att.URL = TelegramFileScheme + fileID
	return att
}

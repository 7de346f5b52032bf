package channels

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/utils"
)

const (
	emptyMessagePlaceholder = "[empty message]"
	typingInterval          = 4 * time.Second
)

// Capabilities describes what a channel variant supports.
// MaxMessageLength 0 means unlimited.
type Capabilities struct {
	Typing           bool
	MaxMessageLength int
}

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	IsRunning() bool
	Capabilities() Capabilities
}

// DeliveryError reports an outbound message that was only partly delivered.
// Chunks after the failed one were abandoned.
type DeliveryError struct {
	Channel   string
	ChatID    string
	Delivered int
	Total     int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: delivered %d of %d chunks to %s: %v", e.Channel, e.Delivered, e.Total, e.ChatID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	allowList []string
	retry     utils.RetryPolicy
	running   atomic.Bool

	// width measures outbound text against the platform limit; nil counts runes
	width func(rune) int

	// one outbound message at a time per adapter
	sendMu sync.Mutex

	typingMu sync.Mutex
	typing   map[string]*rate.Limiter
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
		retry:     utils.DefaultSendRetry,
		typing:    make(map[string]*rate.Limiter),
	}
}

// newUTF16BaseChannel is NewBaseChannel for platforms whose message limit
// counts UTF-16 code units.
func newUTF16BaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	c := NewBaseChannel(name, msgBus, allowList)
	c.width = utils.UTF16Width
	return c
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	return c.running.Load()
}

func (c *BaseChannel) setRunning(running bool) {
	c.running.Store(running)
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	return IsSenderAllowed(senderID, c.allowList)
}

// warnOpenAllowList logs at start when every sender will be accepted.
func (c *BaseChannel) warnOpenAllowList() {
	if len(c.allowList) == 0 {
		logger.WarnCF(c.name, "allow_from is empty; accepting messages from every sender", map[string]any{
			"event": "channel." + c.name + ".open_allowlist",
		})
	}
}

// IsSenderAllowed matches senderID against allowFrom. Entries may be a plain
// ID, an "id|username" compound, "@username" or "*". An empty list allows
// everyone.
func IsSenderAllowed(senderID string, allowFrom []string) bool {
	if len(allowFrom) == 0 {
		return true
	}

	idPart, userPart, _ := strings.Cut(senderID, "|")

	for _, allowed := range allowFrom {
		allowed = strings.TrimSpace(allowed)
		switch {
		case allowed == "":
			continue
		case allowed == "*":
			return true
		case strings.HasPrefix(allowed, "@"):
			if userPart != "" && strings.EqualFold(userPart, allowed[1:]) {
				return true
			}
			continue
		}

		if senderID == allowed || idPart == allowed {
			return true
		}
		if allowedID, _, ok := strings.Cut(allowed, "|"); ok && allowedID == idPart {
			return true
		}
	}
	return false
}

// HandleMessage applies the allowlist and publishes one inbound message.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, attachments []bus.Attachment, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		logger.WarnCF(c.name, "Message rejected by allowlist", map[string]any{
			"event":     "channel." + c.name + ".denied",
			"sender_id": senderID,
		})
		return
	}

	if strings.TrimSpace(content) == "" {
		content = emptyMessagePlaceholder
	}

	msg := bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		Attachments: attachments,
		Metadata:    metadata,
	}

	if err := c.bus.PublishInbound(msg); err != nil {
		logger.ErrorCF(c.name, "Failed to publish inbound message", map[string]any{
			"event": "channel." + c.name + ".publish_failed",
			"error": err.Error(),
		})
	}
}

// deliver chunks content at maxLen and sends each chunk in order through the
// retry policy. The first chunk that exhausts its retries ends delivery.
func (c *BaseChannel) deliver(ctx context.Context, chatID, content string, maxLen int, send func(ctx context.Context, chunk string) error) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	chunks := utils.ChunkTextFunc(content, maxLen, c.width)
	for i, chunk := range chunks {
		err := utils.Retry(ctx, c.retry, func(ctx context.Context) error {
			return send(ctx, chunk)
		})
		if err != nil {
			logger.ErrorCF(c.name, "Message delivery failed", map[string]any{
				"event":   "channel." + c.name + ".send_failed",
				"chat_id": chatID,
				"chunk":   i + 1,
				"chunks":  len(chunks),
				"error":   err.Error(),
			})
			return &DeliveryError{
				Channel:   c.name,
				ChatID:    chatID,
				Delivered: i,
				Total:     len(chunks),
				Err:       err,
			}
		}
	}
	return nil
}

// signalTyping sends a typing indicator at most once per typingInterval per
// chat. Failures are logged, never returned.
func (c *BaseChannel) signalTyping(ctx context.Context, chatID string, signal func(ctx context.Context) error) {
	if !c.typingLimiter(chatID).Allow() {
		return
	}
	if err := utils.Retry(ctx, c.retry, signal); err != nil {
		logger.WarnCF(c.name, "Typing indicator failed", map[string]any{
			"event":   "channel." + c.name + ".typing_failed",
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

func (c *BaseChannel) typingLimiter(chatID string) *rate.Limiter {
	c.typingMu.Lock()
	defer c.typingMu.Unlock()

	lim, ok := c.typing[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(typingInterval), 1)
		c.typing[chatID] = lim
	}
	return lim
}

func appendLine(content, line string) string {
	if content == "" {
		return line
	}
	return content + "\n" + line
}

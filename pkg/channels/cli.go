package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
)

const (
	cliSenderID = "local"
	cliChatID   = "cli"
	cliPrompt   = "you> "
)

// lineReader is the part of *readline.Instance the CLI loop needs.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// CLIChannel reads prompts from the terminal and prints replies to it.
type CLIChannel struct {
	*BaseChannel
	historyFile string
	out         io.Writer
	newReader   func() (lineReader, error)

	mu     sync.Mutex
	reader lineReader
	done   chan struct{}
}

func NewCLIChannel(cfg config.CLIConfig, msgBus *bus.MessageBus) *CLIChannel {
	c := &CLIChannel{
		BaseChannel: NewBaseChannel(bus.ChannelCLI, msgBus, cfg.AllowFrom),
		historyFile: cfg.HistoryFile,
		out:         os.Stdout,
	}
	c.newReader = c.openReadline
	return c
}

func (c *CLIChannel) openReadline() (lineReader, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          cliPrompt,
		HistoryFile:     c.historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func (c *CLIChannel) Capabilities() Capabilities {
	return Capabilities{Typing: true}
}

func (c *CLIChannel) Start(ctx context.Context) error {
	reader, err := c.newReader()
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}

	c.mu.Lock()
	c.reader = reader
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	c.setRunning(true)
	fmt.Fprintln(c.out, "Type a message, /new for a fresh session, /exit to quit.")

	go func() {
		defer close(done)
		defer c.setRunning(false)
		c.readLoop(ctx, reader)
	}()
	return nil
}

func (c *CLIChannel) readLoop(ctx context.Context, reader lineReader) {
	for ctx.Err() == nil {
		line, err := reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.WarnCF("cli", "Terminal read failed", map[string]any{
					"event": "channel.cli.read_failed",
					"error": err.Error(),
				})
			}
			return
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return
		}
		c.HandleMessage(cliSenderID, cliChatID, line, nil, nil)
	}
}

// Done is closed when the user leaves the prompt.
func (c *CLIChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *CLIChannel) Stop(ctx context.Context) error {
	c.mu.Lock()
	reader, done := c.reader, c.done
	c.reader = nil
	c.mu.Unlock()

	if reader == nil {
		return nil
	}
	if err := reader.Close(); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.IsProgress() {
		c.signalTyping(ctx, cliChatID, func(context.Context) error {
			_, err := fmt.Fprintf(c.out, "\x1b[2m... %s\x1b[0m\n", progressLabel(msg))
			return err
		})
		return nil
	}

	return c.deliver(ctx, cliChatID, msg.Content, 0, func(_ context.Context, chunk string) error {
		_, err := fmt.Fprintf(c.out, "\n%s\n\n", chunk)
		return err
	})
}

func progressLabel(msg bus.OutboundMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	return "thinking"
}

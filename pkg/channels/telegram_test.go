package channels

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/voice"
)

type fakeTelegramAPI struct {
	mu          sync.Mutex
	sent        []*telego.SendMessageParams
	sendErrs    []error
	actions     int
	filePath    string
	getFileErr  error
	getFileCall int
}

func (f *fakeTelegramAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	f.sent = append(f.sent, params)
	return &telego.Message{}, nil
}

func (f *fakeTelegramAPI) SendChatAction(context.Context, *telego.SendChatActionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return nil
}

func (f *fakeTelegramAPI) GetFile(context.Context, *telego.GetFileParams) (*telego.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getFileCall++
	if f.getFileErr != nil {
		return nil, f.getFileErr
	}
	return &telego.File{FilePath: f.filePath}, nil
}

func (f *fakeTelegramAPI) FileDownloadURL(path string) string {
	return "https://api.telegram.org/file/botTEST_TOKEN/" + path
}

type fakeTranscriber struct {
	result voice.Result
	paths  []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) voice.Result {
	f.paths = append(f.paths, path)
	return f.result
}

type fakeDownload struct {
	t    *testing.T
	urls []string
	exts []string
	file string
	err  error
}

func (d *fakeDownload) download(_ context.Context, rawURL, ext string) (string, error) {
	d.urls = append(d.urls, rawURL)
	d.exts = append(d.exts, ext)
	if d.err != nil {
		return "", d.err
	}
	d.file = filepath.Join(d.t.TempDir(), "audio"+ext)
	require.NoError(d.t, os.WriteFile(d.file, []byte("audio"), 0o600))
	return d.file, nil
}

func newTestTelegram(t *testing.T, allowFrom []string, tr voice.Transcriber) (*TelegramChannel, *fakeTelegramAPI, *fakeDownload, *bus.MessageBus) {
	t.Helper()
	msgBus := bus.NewMessageBus()
	ch := NewTelegramChannel(config.TelegramConfig{Enabled: true, Token: "TEST_TOKEN", AllowFrom: allowFrom}, msgBus, tr)
	api := &fakeTelegramAPI{filePath: "voice/file_0.oga"}
	dl := &fakeDownload{t: t}
	ch.api = api
	ch.download = dl.download
	ch.retry.Sleep = noSleep
	ch.setRunning(true)
	return ch, api, dl, msgBus
}

func voiceMessage(duration int) *telego.Message {
	return &telego.Message{
		MessageID: 9,
		Voice:     &telego.Voice{FileID: "voice_file_123", Duration: duration},
		Chat:      telego.Chat{ID: 200, Type: "private"},
		From:      &telego.User{ID: 100},
	}
}

func TestTelegramVoice_Transcribed(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Result{Text: "hello world"}}
	ch, _, dl, msgBus := newTestTelegram(t, []string{"100"}, tr)

	ch.handleMessage(context.Background(), voiceMessage(5))

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Equal(t, "telegram", msg.Channel)
	assert.Equal(t, "200", msg.ChatID)
	assert.Equal(t, "100", msg.SenderID)
	assert.Equal(t, "[Voice message transcription]: hello world", msg.Content)
	assert.Equal(t, "9", msg.Metadata[bus.MetaMessageID])
	assert.Equal(t, "false", msg.Metadata["is_group"])

	assert.Equal(t, []string{"https://api.telegram.org/file/botTEST_TOKEN/voice/file_0.oga"}, dl.urls)
	assert.Equal(t, []string{".oga"}, dl.exts)
	assert.Equal(t, []string{dl.file}, tr.paths)
	assert.NoFileExists(t, dl.file, "downloaded audio is removed after use")

	_, more := consumeWithin(t, msgBus, 20*time.Millisecond)
	assert.False(t, more, "exactly one inbound message")
}

func TestTelegramVoice_MissingDependencyGivesInstructions(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Result{Reason: voice.ReasonBinaryNotFound}}
	ch, _, _, msgBus := newTestTelegram(t, []string{"100"}, tr)

	ch.handleMessage(context.Background(), voiceMessage(10))

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "voice message (10s)")
	assert.Contains(t, msg.Content, "whisper-cpp binary not found")
	assert.Contains(t, msg.Content, "brew install whisper-cpp")
}

func TestTelegramAudio_Transcribed(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Result{Text: "Audio content here"}}
	ch, api, dl, msgBus := newTestTelegram(t, []string{"100"}, tr)
	api.filePath = "music/file_0.mp3"

	ch.handleMessage(context.Background(), &telego.Message{
		MessageID: 11,
		Audio:     &telego.Audio{FileID: "audio_file_789", Duration: 180, MimeType: "audio/mpeg"},
		Caption:   "  the demo  ",
		Chat:      telego.Chat{ID: 200},
		From:      &telego.User{ID: 100},
	})

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Equal(t, "[Voice message transcription]: Audio content here\nthe demo", msg.Content)
	assert.Equal(t, []string{".mp3"}, dl.exts)
}

func TestTelegramVoice_GetFileFailure(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Result{Text: "unused"}}
	ch, api, dl, msgBus := newTestTelegram(t, []string{"100"}, tr)
	api.getFileErr = errors.New("Bad Request")

	ch.handleMessage(context.Background(), voiceMessage(3))

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Contains(t, msg.Content, "could not retrieve file from Telegram")
	assert.Empty(t, dl.urls)
	assert.Empty(t, tr.paths)
}

func TestTelegramVoice_DeniedSenderDownloadsNothing(t *testing.T) {
	tr := &fakeTranscriber{result: voice.Result{Text: "unused"}}
	ch, api, dl, msgBus := newTestTelegram(t, []string{"100"}, tr)

	msg := voiceMessage(5)
	msg.From = &telego.User{ID: 999, Username: "mallory"}
	ch.handleMessage(context.Background(), msg)

	_, ok := consumeWithin(t, msgBus, 20*time.Millisecond)
	assert.False(t, ok)
	assert.Zero(t, api.getFileCall)
	assert.Empty(t, dl.urls)
}

func TestTelegramText_PhotoAndDocument(t *testing.T) {
	ch, api, _, msgBus := newTestTelegram(t, nil, nil)

	ch.handleMessage(context.Background(), &telego.Message{
		MessageID: 1,
		Photo:     []telego.PhotoSize{{FileID: "small"}, {FileID: "large", FileSize: 2048}},
		Chat:      telego.Chat{ID: -42, Type: "group"},
		From:      &telego.User{ID: 7, Username: "alice", FirstName: "Alice"},
	})

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Equal(t, "[image]", msg.Content)
	assert.Equal(t, "7|alice", msg.SenderID)
	assert.Equal(t, "-42", msg.ChatID)
	assert.Equal(t, "true", msg.Metadata["is_group"])
	assert.Equal(t, "Alice", msg.Metadata["first_name"])
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, bus.AttachmentImage, msg.Attachments[0].Type)
	assert.Equal(t, "tg-file:large", msg.Attachments[0].URL)
	assert.NotContains(t, msg.Attachments[0].URL, "TEST_TOKEN")
	assert.EqualValues(t, 2048, msg.Attachments[0].Size)
	assert.Zero(t, api.getFileCall, "attachments are not resolved to token-bearing URLs")

	ch.handleMessage(context.Background(), &telego.Message{
		MessageID: 2,
		Document:  &telego.Document{FileID: "d", FileName: "report.pdf", MimeType: "application/pdf"},
		Chat:      telego.Chat{ID: 5},
		From:      &telego.User{ID: 7},
	})
	msg, ok = consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Equal(t, "[document: report.pdf]", msg.Content)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "report.pdf", msg.Attachments[0].FileName)
	assert.Equal(t, TelegramFileScheme+"d", msg.Attachments[0].URL)
}

func TestTelegramText_EmptyBecomesPlaceholder(t *testing.T) {
	ch, _, _, msgBus := newTestTelegram(t, nil, nil)

	ch.handleMessage(context.Background(), &telego.Message{
		Text: "   ",
		Chat: telego.Chat{ID: 5},
		From: &telego.User{ID: 7},
	})

	msg, ok := consumeWithin(t, msgBus, time.Second)
	require.True(t, ok)
	assert.Equal(t, "[empty message]", msg.Content)
}

func TestTelegramSend_RetriesAndSucceeds(t *testing.T) {
	ch, api, _, _ := newTestTelegram(t, nil, nil)
	api.sendErrs = []error{errors.New("HTTP 500")}

	require.NoError(t, ch.Send(context.Background(), bus.OutboundMessage{Channel: "telegram", ChatID: "123", Content: "hello"}))

	require.Len(t, api.sent, 1)
	assert.Equal(t, "hello", api.sent[0].Text)
	assert.Empty(t, api.sendErrs, "first attempt failed, second went through")
}

func TestTelegramSend_ChunksAndRepliesOnce(t *testing.T) {
	ch, api, _, _ := newTestTelegram(t, nil, nil)

	content := strings.Repeat("a", 5000)
	require.NoError(t, ch.Send(context.Background(), bus.OutboundMessage{
		Channel: "telegram", ChatID: "123", Content: content, ReplyTo: "77",
	}))

	require.Len(t, api.sent, 2)
	assert.Len(t, api.sent[0].Text, 4000)
	assert.Len(t, api.sent[1].Text, 1000)
	require.NotNil(t, api.sent[0].ReplyParameters)
	assert.Equal(t, 77, api.sent[0].ReplyParameters.MessageID)
	assert.Nil(t, api.sent[1].ReplyParameters)
}

func TestTelegramSend_EmojiChunksFitUTF16Limit(t *testing.T) {
	ch, api, _, _ := newTestTelegram(t, nil, nil)

	content := strings.Repeat("😀", 5000)
	require.NoError(t, ch.Send(context.Background(), bus.OutboundMessage{Channel: "telegram", ChatID: "123", Content: content}))

	require.Len(t, api.sent, 3)
	var joined strings.Builder
	for i, sent := range api.sent {
		units := len(utf16.Encode([]rune(sent.Text)))
		assert.LessOrEqual(t, units, telegramMaxMessageLength, "message %d", i)
		joined.WriteString(sent.Text)
	}
	assert.Equal(t, content, joined.String())
}

func TestTelegramSend_ProgressIsTypingOnly(t *testing.T) {
	ch, api, _, _ := newTestTelegram(t, nil, nil)
	progress := bus.AgentTurnUpdate{Kind: bus.UpdateTurnStarted, Message: "thinking"}.Progress("telegram", "123")

	require.NoError(t, ch.Send(context.Background(), progress))
	require.NoError(t, ch.Send(context.Background(), progress))

	assert.Equal(t, 1, api.actions, "typing is throttled per chat")
	assert.Empty(t, api.sent)
}

func TestTelegramSend_Errors(t *testing.T) {
	ch, _, _, _ := newTestTelegram(t, nil, nil)

	err := ch.Send(context.Background(), bus.OutboundMessage{ChatID: "not-a-number", Content: "x"})
	assert.ErrorContains(t, err, "invalid chat ID")

	ch.setRunning(false)
	err = ch.Send(context.Background(), bus.OutboundMessage{ChatID: "1", Content: "x"})
	assert.ErrorContains(t, err, "not running")
}

func TestTelegramStart_MissingTokenIsNoop(t *testing.T) {
	ch := NewTelegramChannel(config.TelegramConfig{Enabled: true}, bus.NewMessageBus(), nil)
	require.NoError(t, ch.Start(context.Background()))
	assert.False(t, ch.IsRunning())
	require.NoError(t, ch.Stop(context.Background()))
}

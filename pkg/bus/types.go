package bus

import "time"

// Channel tags.
const (
	ChannelTelegram = "telegram"
	ChannelDiscord  = "discord"
	ChannelCLI      = "cli"
)

// Metadata keys shared by adapters and the agent loop.
const (
	MetaKind      = "kind"
	MetaMessageID = "message_id"
	MetaUpdate    = "update"

	KindProgress = "progress"
)

type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Timestamp   time.Time         `json:"timestamp"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConversationKey maps the message onto one backend session.
func (m InboundMessage) ConversationKey() string {
	return m.Channel + ":" + m.ChatID
}

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentVideo    AttachmentType = "video"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
	AttachmentFile     AttachmentType = "file"
)

// Attachment references media by URL or local path; it does not own bytes.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	URL      string         `json:"url,omitempty"`
	Path     string         `json:"path,omitempty"`
	MIMEType string         `json:"mime_type,omitempty"`
	Size     int64          `json:"size,omitempty"`
	FileName string         `json:"file_name,omitempty"`
}

type OutboundMessage struct {
	Channel     string            `json:"channel"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// IsProgress reports whether the message is a transient typing indicator.
func (m OutboundMessage) IsProgress() bool {
	return m.Metadata[MetaKind] == KindProgress
}

type UpdateKind string

const (
	UpdateTurnStarted      UpdateKind = "turn_started"
	UpdateToolCallStarted  UpdateKind = "tool_call_started"
	UpdateToolCallFinished UpdateKind = "tool_call_finished"
	UpdateToolCallFailed   UpdateKind = "tool_call_failed"
	UpdateTurnFinished     UpdateKind = "turn_finished"
)

// AgentTurnUpdate is emitted during an agent turn and drives progress messages.
type AgentTurnUpdate struct {
	Kind      UpdateKind `json:"kind"`
	Message   string     `json:"message"`
	ToolName  string     `json:"tool_name,omitempty"`
	ToolUseID string     `json:"tool_use_id,omitempty"`
}

// Progress builds the outbound typing-indicator variant for an update.
func (u AgentTurnUpdate) Progress(channel, chatID string) OutboundMessage {
	return OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: u.Message,
		Metadata: map[string]string{
			MetaKind:   KindProgress,
			MetaUpdate: string(u.Kind),
		},
	}
}

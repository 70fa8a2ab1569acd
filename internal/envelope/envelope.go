// Package envelope defines the UniversalMessage schema that every ingress
// adapter normalizes provider payloads into before publishing to the bus.
package envelope

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/google/uuid"
)

// MessageType enumerates the content shapes a UniversalMessage can carry.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeVideo MessageType = "video"
	MessageTypeAudio MessageType = "audio"
	MessageTypeFile  MessageType = "file"
)

// ChannelType enumerates the supported ingress/delivery channels.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWeb      ChannelType = "web"
)

// Channel carries the channel-specific routing coordinates of a message.
type Channel struct {
	Type      ChannelType            `json:"type"`
	ChannelID string                 `json:"channelId"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// User carries the channel-native identity plus, once resolved, the unified
// identity a message's sender maps onto.
type User struct {
	ID            string `json:"id"`
	ChannelUserID string `json:"channelUserId"`
	Username      string `json:"username,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	UnifiedUserID string `json:"unifiedUserId,omitempty"`
}

// Attachment describes one file carried alongside a message's text.
type Attachment struct {
	Type             string `json:"type"`
	FileID           string `json:"file_id"`
	FileName         string `json:"file_name,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`
	S3URL            string `json:"s3_url,omitempty"`
	PermissionDenied bool   `json:"permission_denied,omitempty"`
	Task             string `json:"task,omitempty"`
}

// Content carries the message body.
type Content struct {
	Text        string       `json:"text"`
	MessageType MessageType  `json:"messageType"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Context carries the conversational placement of a message.
type Context struct {
	ConversationID string `json:"conversationId,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	ThreadID       string `json:"threadId,omitempty"`
}

// Routing carries dispatch hints a processor may honor.
type Routing struct {
	Priority    string   `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	TargetAgent string   `json:"targetAgent,omitempty"`
}

// UniversalMessage is the channel-agnostic envelope every ingress adapter
// normalizes to before publishing message.received. It is never persisted
// as-is; the Raw field, when present, is stripped before the event is put
// on the bus so event size stays bounded.
type UniversalMessage struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Channel   Channel   `json:"channel"`
	User      User      `json:"user"`
	Content   Content   `json:"content"`
	Context   Context   `json:"context"`
	Routing   Routing   `json:"routing"`

	// Raw carries the provider payload through internal queues (e.g. the
	// legacy mirror) but must never cross the bus publish boundary.
	Raw jsoniter.RawMessage `json:"-"`
}

// NewMessageID mints a fresh message id the way every ingress adapter does
// at the moment it builds a UniversalMessage.
func NewMessageID() string {
	return uuid.NewString()
}

// StripRaw returns a copy of m with Raw cleared, the shape that is actually
// put on the event bus.
func (m UniversalMessage) StripRaw() UniversalMessage {
	m.Raw = nil
	return m
}

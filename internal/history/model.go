// Package history persists every turn keyed by unified_user_id and groups
// turns into conversations — component C2 of the gateway.
package history

import "time"

// Role distinguishes the two sides of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Attachment mirrors envelope.Attachment for the subset persisted history
// cares about.
type Attachment struct {
	Type     string `json:"type"`
	FileName string `json:"file_name,omitempty"`
	S3URL    string `json:"s3_url,omitempty"`
}

// Content is the body of a HistoryMessage.
type Content struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Message is a single turn persisted under (unified_user_id, timestamp_msgid).
// TimestampMsgID is <ISO-8601 UTC>#<uuid>, chosen so lexicographic order
// equals chronological order.
type Message struct {
	UnifiedUserID  string  `json:"unified_user_id"`
	TimestampMsgID string  `json:"timestamp_msgid"`
	Role           Role    `json:"role"`
	Content        Content `json:"content"`
	Channel        string  `json:"channel"`
	ConversationID string  `json:"conversation_id,omitempty"`
}

// Timestamp extracts the chronological component of TimestampMsgID.
func (m Message) Timestamp() (time.Time, error) {
	return ParseTimestampMsgID(m.TimestampMsgID)
}

// Conversation groups a contiguous run of messages for one user, bounded by
// a silence gap or an explicit /new.
type Conversation struct {
	UnifiedUserID   string    `json:"unified_user_id"`
	ConversationID  string    `json:"conversation_id"`
	Title           string    `json:"title"`
	CreatedAt       time.Time `json:"created_at"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessageCount    int       `json:"message_count"`
	IsPinned        bool      `json:"is_pinned"`
	IsDeleted       bool      `json:"is_deleted"`
	DeletedAt       time.Time `json:"deleted_at,omitempty"`
}

// TimeBucket is the display grouping assigned by BucketFor: today, yesterday,
// this week, or earlier, relative to UTC midnight.
type TimeBucket string

const (
	BucketToday     TimeBucket = "today"
	BucketYesterday TimeBucket = "yesterday"
	BucketThisWeek  TimeBucket = "this_week"
	BucketEarlier   TimeBucket = "earlier"
)

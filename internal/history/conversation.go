package history

import (
	"context"
	"log/slog"
	"time"

	"relay/internal/relayerr"
)

// gapThreshold is the silence gap after which a new conversation opens
// (1 hour per the specification).
const gapThreshold = time.Hour

const titleMaxLen = 30

// Service is the façade the response router and REST layer call into for
// history writes and conversation management.
type Service struct {
	store     *Store
	pageSize  int
	newConvID func() string
}

// NewService constructs a Service.
func NewService(s *Store, pageSize int, newConvID func() string) *Service {
	return &Service{store: s, pageSize: pageSize, newConvID: newConvID}
}

// AssignConversation implements §4.2's conversation assignment rule: the
// explicit conversation id supplied by the client, else the user's most
// recent non-deleted conversation if within the silence gap, else a fresh
// conversation titled from seedText.
func (s *Service) AssignConversation(ctx context.Context, uid, explicit, seedText string, now time.Time) (*Conversation, error) {
	if explicit != "" {
		if c, err := s.store.GetConversation(ctx, uid, explicit); err == nil {
			return c, nil
		}
	}

	if recent, err := s.store.MostRecentConversation(ctx, uid); err == nil {
		if now.Sub(recent.LastMessageTime) <= gapThreshold {
			return recent, nil
		}
	}

	c := &Conversation{
		UnifiedUserID:   uid,
		ConversationID:  s.newConvID(),
		Title:           truncateTitle(seedText),
		CreatedAt:       now,
		LastMessageTime: now,
		MessageCount:    0,
	}
	if err := s.store.PutConversation(ctx, c); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to create conversation", err)
	}
	return c, nil
}

// StartNew unconditionally opens a fresh conversation for uid, ignoring
// the silence-gap reuse rule AssignConversation applies. This is what
// /new and the "create conversation" REST endpoint call: the explicit
// ask for a clean slate overrides the usual recency heuristic.
func (s *Service) StartNew(ctx context.Context, uid, seedText string, now time.Time) (*Conversation, error) {
	c := &Conversation{
		UnifiedUserID:   uid,
		ConversationID:  s.newConvID(),
		Title:           truncateTitle(seedText),
		CreatedAt:       now,
		LastMessageTime: now,
	}
	if err := s.store.PutConversation(ctx, c); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to create conversation", err)
	}
	return c, nil
}

func truncateTitle(text string) string {
	r := []rune(text)
	if len(r) <= titleMaxLen {
		return text
	}
	return string(r[:titleMaxLen]) + "…"
}

// RecordTurn implements the write protocol of §4.2: exactly two
// HistoryMessage records (user, then assistant), bumping the
// conversation's last_message_time and message_count by 2. It is
// best-effort: a failure is logged and returned, but the caller must not
// let it fail the user-visible reply.
func (s *Service) RecordTurn(ctx context.Context, uid, channel string, conv *Conversation, userText, assistantText string, userAttachments []Attachment, now time.Time) error {
	userMsg := &Message{
		UnifiedUserID:  uid,
		TimestampMsgID: NewTimestampMsgID(now),
		Role:           RoleUser,
		Content:        Content{Text: userText, Attachments: userAttachments},
		Channel:        channel,
		ConversationID: conv.ConversationID,
	}
	assistantMsg := &Message{
		UnifiedUserID:  uid,
		TimestampMsgID: NewTimestampMsgID(now.Add(time.Nanosecond)),
		Role:           RoleAssistant,
		Content:        Content{Text: assistantText},
		Channel:        channel,
		ConversationID: conv.ConversationID,
	}

	if err := s.store.PutMessage(ctx, userMsg); err != nil {
		slog.Warn("failed to persist user turn", "unified_user_id", uid, "error", err)
		return err
	}
	if err := s.store.PutMessage(ctx, assistantMsg); err != nil {
		slog.Warn("failed to persist assistant turn", "unified_user_id", uid, "error", err)
		return err
	}

	conv.LastMessageTime = now
	conv.MessageCount += 2
	if err := s.store.PutConversation(ctx, conv); err != nil {
		slog.Warn("failed to update conversation", "unified_user_id", uid, "error", err)
		return err
	}
	return nil
}

// ConversationPage is the pinned/recent partition §4.2 describes.
type ConversationPage struct {
	Pinned []Conversation
	Recent []Conversation
	Cursor string
}

// ListConversations returns a user's conversations partitioned into
// {pinned[], recent[]}, each ordered by last_message_time descending, with
// an opaque pagination cursor over the recent slice.
func (s *Service) ListConversations(ctx context.Context, uid, afterCursor string) (*ConversationPage, error) {
	all, err := s.store.ListConversations(ctx, uid, false)
	if err != nil {
		return nil, err
	}

	var pinned, recent []Conversation
	skipping := afterCursor != ""
	for _, c := range all {
		if c.IsPinned {
			pinned = append(pinned, c)
			continue
		}
		if skipping {
			if c.ConversationID == afterCursor {
				skipping = false
			}
			continue
		}
		recent = append(recent, c)
		if len(recent) >= s.pageSize {
			break
		}
	}

	cursor := ""
	if len(recent) > 0 {
		cursor = recent[len(recent)-1].ConversationID
	}

	return &ConversationPage{Pinned: pinned, Recent: recent, Cursor: cursor}, nil
}

// Rename sets a conversation's title.
func (s *Service) Rename(ctx context.Context, uid, convID, title string) error {
	c, err := s.store.GetConversation(ctx, uid, convID)
	if err != nil {
		return err
	}
	c.Title = title
	return s.store.PutConversation(ctx, c)
}

// SetPinned pins or unpins a conversation.
func (s *Service) SetPinned(ctx context.Context, uid, convID string, pinned bool) error {
	c, err := s.store.GetConversation(ctx, uid, convID)
	if err != nil {
		return err
	}
	c.IsPinned = pinned
	return s.store.PutConversation(ctx, c)
}

// SoftDelete marks a conversation deleted without removing its messages.
func (s *Service) SoftDelete(ctx context.Context, uid, convID string, now time.Time) error {
	c, err := s.store.GetConversation(ctx, uid, convID)
	if err != nil {
		return err
	}
	c.IsDeleted = true
	c.DeletedAt = now
	return s.store.PutConversation(ctx, c)
}

// ListMessages returns a conversation's messages oldest-first.
func (s *Service) ListMessages(ctx context.Context, uid, convID, afterID string, limit int) ([]Message, error) {
	all, err := s.store.ListMessages(ctx, uid, afterID, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if m.ConversationID == convID {
			out = append(out, m)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Store exposes the underlying Store for migration/export callers.
func (s *Service) Store() *Store { return s.store }

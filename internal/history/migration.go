package history

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"relay/internal/relayerr"
)

// Migrator assigns conversation_id to legacy messages that predate
// conversation grouping. It is safe to run more than once: any message
// that already carries a conversation_id is left untouched, so a retried
// or re-triggered run only processes what an earlier run missed.
type Migrator struct {
	store     *Store
	newConvID func() string
}

// NewMigrator constructs a Migrator.
func NewMigrator(s *Store, newConvID func() string) *Migrator {
	return &Migrator{store: s, newConvID: newConvID}
}

// Report summarizes one migration run.
type Report struct {
	UsersProcessed       int
	MessagesAssigned     int
	ConversationsCreated int
	Errors               []string
}

// Run walks every known unified_user_id's messages in chronological order,
// opening a new conversation whenever the gap since the previous message
// exceeds the silence threshold, and leaves already-assigned messages
// alone.
func (m *Migrator) Run(ctx context.Context) (*Report, error) {
	uids, err := m.discoverUnifiedUserIDs(ctx)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to enumerate users for migration", err)
	}

	report := &Report{}
	for _, uid := range uids {
		if err := m.runForUser(ctx, uid, report); err != nil {
			report.Errors = append(report.Errors, uid+": "+err.Error())
			slog.Warn("migration failed for user", "unified_user_id", uid, "error", err)
			continue
		}
		report.UsersProcessed++
	}
	return report, nil
}

func (m *Migrator) discoverUnifiedUserIDs(ctx context.Context) ([]string, error) {
	keys, err := m.store.kv.Scan(ctx, "hist:")
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(keys))
	for _, k := range keys {
		uids = append(uids, strings.TrimPrefix(k, "hist:"))
	}
	return uids, nil
}

func (m *Migrator) runForUser(ctx context.Context, uid string, report *Report) error {
	messages, err := m.store.ListAllMessagesChronological(ctx, uid)
	if err != nil {
		return err
	}

	var (
		currentConv *Conversation
		prevTime    time.Time
	)

	for i := range messages {
		msg := &messages[i]
		if msg.ConversationID != "" {
			continue
		}

		ts, err := msg.Timestamp()
		if err != nil {
			continue
		}

		if currentConv == nil || ts.Sub(prevTime) > gapThreshold {
			currentConv = &Conversation{
				UnifiedUserID:   uid,
				ConversationID:  m.newConvID(),
				Title:           truncateTitle(msg.Content.Text),
				CreatedAt:       ts,
				LastMessageTime: ts,
			}
			report.ConversationsCreated++
		}

		msg.ConversationID = currentConv.ConversationID
		currentConv.LastMessageTime = ts
		currentConv.MessageCount++
		prevTime = ts

		if err := m.store.PutMessage(ctx, msg); err != nil {
			return err
		}
		report.MessagesAssigned++

		if err := m.store.PutConversation(ctx, currentConv); err != nil {
			return err
		}
	}

	return nil
}

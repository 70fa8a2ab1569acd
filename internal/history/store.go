package history

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/relayerr"
	"relay/internal/store"
)

// Store persists messages and conversations on top of a store.KV. Keys:
//
//	msg:{uid}:{timestamp_msgid}   -> JSON Message
//	hist:{uid}                   -> sorted set of timestamp_msgid scored by
//	                                 its own nanosecond timestamp (chronological index)
//	conv:{uid}:{conversation_id}  -> JSON Conversation
//	convs:{uid}                  -> sorted set of conversation_id scored by
//	                                 last_message_time (user-by-time index)
type Store struct {
	kv  store.KV
	ttl time.Duration
}

// NewStore wraps kv as a history Store with the given message TTL.
func NewStore(kv store.KV, ttl time.Duration) *Store {
	return &Store{kv: kv, ttl: ttl}
}

func msgKey(uid, tsID string) string { return "msg:" + uid + ":" + tsID }
func histIndexKey(uid string) string { return "hist:" + uid }
func convKey(uid, convID string) string { return "conv:" + uid + ":" + convID }
func convsIndexKey(uid string) string   { return "convs:" + uid }

// PutMessage writes a single HistoryMessage record. The write is meant to
// be best-effort from the caller's point of view: a failure here must
// never fail the user-visible reply, only be logged by the caller.
func (s *Store) PutMessage(ctx context.Context, m *Message) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(m)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, msgKey(m.UnifiedUserID, m.TimestampMsgID), data, s.ttl); err != nil {
		return err
	}
	ts, err := m.Timestamp()
	if err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, histIndexKey(m.UnifiedUserID), float64(ts.UnixNano()), m.TimestampMsgID)
}

// GetMessage loads a single message by its timestamp_msgid.
func (s *Store) GetMessage(ctx context.Context, uid, tsID string) (*Message, error) {
	raw, err := s.kv.Get(ctx, msgKey(uid, tsID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "history store unavailable", err)
	}
	var m Message
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &m); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt message record", err)
	}
	return &m, nil
}

// ListMessages returns up to limit messages for uid, oldest-first, starting
// strictly after the message with timestamp_msgid == afterID (empty means
// from the beginning).
func (s *Store) ListMessages(ctx context.Context, uid string, afterID string, limit int) ([]Message, error) {
	min := 0.0
	if afterID != "" {
		ts, err := ParseTimestampMsgID(afterID)
		if err == nil {
			min = float64(ts.UnixNano()) + 1
		}
	}

	ids, err := s.kv.ZRangeByScore(ctx, histIndexKey(uid), min, 1<<62)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "history store unavailable", err)
	}
	if afterID != "" {
		// The float score cannot resolve single nanoseconds, so drop afterID
		// and anything sharing its score but not sorting after it.
		kept := ids[:0]
		for _, id := range ids {
			if id > afterID {
				kept = append(kept, id)
			}
		}
		ids = kept
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.GetMessage(ctx, uid, id)
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// ListAllMessagesChronological returns every message for uid, oldest-first,
// unbounded. Used by the offline conversation migration and Markdown/JSON
// export, not hot request paths.
func (s *Store) ListAllMessagesChronological(ctx context.Context, uid string) ([]Message, error) {
	return s.ListMessages(ctx, uid, "", 0)
}

// PutConversation creates or overwrites a Conversation record and updates
// the user-by-time index.
func (s *Store) PutConversation(ctx context.Context, c *Conversation) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(c)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, convKey(c.UnifiedUserID, c.ConversationID), data, 0); err != nil {
		return err
	}
	return s.kv.ZAdd(ctx, convsIndexKey(c.UnifiedUserID), float64(c.LastMessageTime.UnixNano()), c.ConversationID)
}

// GetConversation loads a single conversation.
func (s *Store) GetConversation(ctx context.Context, uid, convID string) (*Conversation, error) {
	raw, err := s.kv.Get(ctx, convKey(uid, convID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "conversation not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "history store unavailable", err)
	}
	var c Conversation
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &c); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt conversation record", err)
	}
	return &c, nil
}

// ListConversations returns every (optionally including soft-deleted)
// conversation for uid, ordered by last_message_time descending.
func (s *Store) ListConversations(ctx context.Context, uid string, includeDeleted bool) ([]Conversation, error) {
	ids, err := s.kv.ZRevRangeByScore(ctx, convsIndexKey(uid), 0, 1<<62, 0, 0)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "history store unavailable", err)
	}
	out := make([]Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, uid, id)
		if err != nil {
			continue
		}
		if c.IsDeleted && !includeDeleted {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

// MostRecentConversation returns the single most recently active,
// non-deleted conversation for uid, used by conversation assignment.
func (s *Store) MostRecentConversation(ctx context.Context, uid string) (*Conversation, error) {
	ids, err := s.kv.ZRevRangeByScore(ctx, convsIndexKey(uid), 0, 1<<62, 0, 5)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "history store unavailable", err)
	}
	for _, id := range ids {
		c, err := s.GetConversation(ctx, uid, id)
		if err != nil {
			continue
		}
		if !c.IsDeleted {
			return c, nil
		}
	}
	return nil, relayerr.New(relayerr.KindNotFound, "no recent conversation")
}

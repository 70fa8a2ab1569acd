package history

import "context"

// HistoryPage is the cursor-paginated, optionally channel-filtered listing
// GET /history returns, independent of conversation boundaries.
type HistoryPage struct {
	Messages []Message
	LastKey  string
}

// ListHistory returns up to limit messages for uid strictly after
// afterKey, oldest-first, optionally restricted to one channel.
func (s *Service) ListHistory(ctx context.Context, uid, afterKey, channel string, limit int) (*HistoryPage, error) {
	fetchLimit := limit
	if channel != "" && fetchLimit > 0 {
		// A channel filter can thin the raw page out; over-fetch so the
		// caller still gets up to `limit` matching rows in one round trip.
		fetchLimit *= 4
	}

	all, err := s.store.ListMessages(ctx, uid, afterKey, fetchLimit)
	if err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(all))
	for _, m := range all {
		if channel != "" && m.Channel != channel {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	page := &HistoryPage{Messages: out}
	if len(out) > 0 {
		page.LastKey = out[len(out)-1].TimestampMsgID
	}
	return page, nil
}

// Stats summarizes a user's history for GET /history/stats.
type Stats struct {
	TotalMessages     int
	TotalConversations int
	PinnedCount       int
}

// Stats computes the summary counts GET /history/stats returns.
func (s *Service) Stats(ctx context.Context, uid string) (*Stats, error) {
	messages, err := s.store.ListAllMessagesChronological(ctx, uid)
	if err != nil {
		return nil, err
	}
	convs, err := s.store.ListConversations(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	pinned := 0
	for _, c := range convs {
		if c.IsPinned {
			pinned++
		}
	}
	return &Stats{
		TotalMessages:      len(messages),
		TotalConversations: len(convs),
		PinnedCount:        pinned,
	}, nil
}

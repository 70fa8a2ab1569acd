package history

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/relayerr"
)

// ExportJSON returns a user's full history as a raw JSON array of
// Message, oldest first.
func (s *Service) ExportJSON(ctx context.Context, uid string) ([]byte, error) {
	messages, err := s.store.ListAllMessagesChronological(ctx, uid)
	if err != nil {
		return nil, err
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(messages)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to encode export", err)
	}
	return data, nil
}

// ExportMarkdown renders a user's full history as Markdown, sorted
// oldest-first and grouped under a "## YYYY-MM-DD" heading per calendar
// day, each entry prefixed with its HH:MM:SS time, role, and channel.
func (s *Service) ExportMarkdown(ctx context.Context, uid string) (string, error) {
	messages, err := s.store.ListAllMessagesChronological(ctx, uid)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	lastDate := ""
	for _, m := range messages {
		ts, err := m.Timestamp()
		if err != nil {
			continue
		}
		ts = ts.UTC()
		date := ts.Format("2006-01-02")
		if date != lastDate {
			if lastDate != "" {
				b.WriteString("\n")
			}
			b.WriteString(fmt.Sprintf("## %s\n\n", date))
			lastDate = date
		}

		b.WriteString(fmt.Sprintf("**%s** [%s/%s]: %s\n\n", ts.Format("15:04:05"), m.Role, m.Channel, m.Content.Text))
		for _, a := range m.Content.Attachments {
			b.WriteString(fmt.Sprintf("- attachment: %s (%s)\n", a.FileName, a.Type))
		}
	}
	return b.String(), nil
}

package command

import (
	"context"

	"relay/internal/identity"
)

// SessionOpener opens a fresh conversation session for chatID, returning the
// new session id. The command layer does not own conversation storage
// directly; internal/history does, reached through this narrow seam so the
// command package does not need to import it.
type SessionOpener func(ctx context.Context, chatID string) (string, error)

// NewNewCommand builds the /new command: no permission required, it opens a
// new conversation without touching any long-term memory the processor
// keeps on its own side of the boundary.
func NewNewCommand(open SessionOpener) Command {
	return Command{
		Name:       "new",
		Permission: identity.PermissionNone,
		Handler: func(ctx context.Context, msg Message, _ string) (*Reply, error) {
			sessionID, err := open(ctx, msg.ChatID)
			if err != nil {
				return nil, err
			}
			return &Reply{Text: "Started a new conversation: " + sessionID}, nil
		},
	}
}

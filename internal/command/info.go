package command

import (
	"context"
	"fmt"

	"relay/internal/identity"
)

// BuildInfo is the deployment descriptor /info reports: version string,
// build time, and the channels currently wired.
type BuildInfo struct {
	Version  string
	BuiltAt  string
	Channels []string
}

// NewInfoCommand builds the /info command: no permission required, a
// static deployment descriptor for operators to sanity-check which build
// answered their message.
func NewInfoCommand(info BuildInfo) Command {
	return Command{
		Name:       "info",
		Permission: identity.PermissionNone,
		Handler: func(_ context.Context, _ Message, _ string) (*Reply, error) {
			return &Reply{Text: fmt.Sprintf("version=%s built_at=%s channels=%v", info.Version, info.BuiltAt, info.Channels)}, nil
		},
	}
}

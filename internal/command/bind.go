package command

import (
	"context"
	"strings"

	"relay/internal/identity"
	"relay/internal/relayerr"
)

// NewBindCommand builds the /bind <code> command: no permission required,
// so a chat without an allowlist entry can still redeem a code. Redeeming
// links the chat to the unified user; it does not add an allowlist entry. It
// delegates the protocol's substeps to identity.Service.RedeemCode, which
// already enforces the 6-digit shape check, expiry, and anti-hijack guard.
func NewBindCommand(svc *identity.Service) Command {
	return Command{
		Name:       "bind",
		Permission: identity.PermissionNone,
		Handler: func(ctx context.Context, msg Message, args string) (*Reply, error) {
			code := strings.TrimSpace(args)
			if code == "" {
				return &Reply{Text: "Usage: /bind <code>"}, nil
			}

			email, err := svc.RedeemCode(ctx, code, msg.ChatID)
			if err != nil {
				if relayerr.Is(err, relayerr.KindNotFound) || relayerr.Is(err, relayerr.KindInvalidInput) {
					return &Reply{Text: "That code is invalid or expired."}, nil
				}
				return &Reply{Text: relayerr.UserMessage(err)}, nil
			}

			return &Reply{Text: "This chat is now bound to " + email + "."}, nil
		},
	}
}

package command

import (
	"context"
	"fmt"
	"strings"

	"relay/internal/identity"
)

// BroadcastFunc sends text to every allowlisted chat id except selfChatID
// and reports how many deliveries succeeded; the caller (the
// ingress adapter) owns the actual Telegram API calls.
type BroadcastFunc func(ctx context.Context, entries []identity.AllowlistEntry, selfChatID, text string) int

// MigrateFunc runs the offline legacy conversation_id backfill on demand,
// returning a one-line summary of what it did. Supplemental operational
// escape hatch alongside the standalone migration entry point.
type MigrateFunc func(ctx context.Context) (string, error)

// NewAdminCommand builds the /admin command tree. Unlike the original
// bot's single stub reply, each verb is wired to the allowlist service so
// administrators can actually manage access from chat.
func NewAdminCommand(svc *identity.Service, broadcast BroadcastFunc, migrate MigrateFunc) Command {
	return Command{
		Name:       "admin",
		Permission: identity.PermissionAdmin,
		Handler: func(ctx context.Context, msg Message, args string) (*Reply, error) {
			verb, rest := splitWord(args)
			switch verb {
			case "", "help":
				return &Reply{Text: adminHelpText}, nil
			case "add":
				return adminAdd(ctx, svc, rest)
			case "remove":
				return adminRemove(ctx, svc, msg.ChatID, rest)
			case "list":
				return adminList(ctx, svc)
			case "info":
				return adminInfo(ctx, svc, rest)
			case "enable":
				return adminSetEnabled(ctx, svc, msg.ChatID, rest, true)
			case "disable":
				return adminSetEnabled(ctx, svc, msg.ChatID, rest, false)
			case "promote":
				return adminSetRole(ctx, svc, msg.ChatID, rest, identity.RoleAdmin)
			case "demote":
				return adminSetRole(ctx, svc, msg.ChatID, rest, identity.RoleUser)
			case "stats":
				return adminStats(ctx, svc)
			case "broadcast":
				return adminBroadcast(ctx, svc, broadcast, msg.ChatID, rest)
			case "migrate-history":
				return adminMigrateHistory(ctx, migrate)
			default:
				return &Reply{Text: "Unknown /admin subcommand. " + adminHelpText}, nil
			}
		},
	}
}

const adminHelpText = "Usage: /admin <add|remove|list|info|enable|disable|promote|demote|stats|broadcast|migrate-history|help> [args]"

func adminMigrateHistory(ctx context.Context, migrate MigrateFunc) (*Reply, error) {
	if migrate == nil {
		return &Reply{Text: "History migration is not wired up on this deployment."}, nil
	}
	summary, err := migrate(ctx)
	if err != nil {
		return nil, err
	}
	return &Reply{Text: summary}, nil
}

func splitWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	parts := strings.SplitN(s, " ", 2)
	word = parts[0]
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}
	return word, rest
}

func adminAdd(ctx context.Context, svc *identity.Service, args string) (*Reply, error) {
	chatID, username := splitWord(args)
	if chatID == "" {
		return &Reply{Text: "Usage: /admin add <chat_id> [username]"}, nil
	}
	if err := svc.AllowlistAdd(ctx, chatID, username); err != nil {
		return nil, err
	}
	return &Reply{Text: fmt.Sprintf("Added %s to the allowlist.", chatID)}, nil
}

func adminRemove(ctx context.Context, svc *identity.Service, actorChatID, args string) (*Reply, error) {
	chatID, _ := splitWord(args)
	if chatID == "" {
		return &Reply{Text: "Usage: /admin remove <chat_id>"}, nil
	}
	if err := svc.AllowlistRemove(ctx, actorChatID, chatID); err != nil {
		return nil, err
	}
	return &Reply{Text: fmt.Sprintf("Removed %s from the allowlist.", chatID)}, nil
}

func adminList(ctx context.Context, svc *identity.Service) (*Reply, error) {
	entries, err := svc.ListAllowlist(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &Reply{Text: "The allowlist is empty."}, nil
	}
	var b strings.Builder
	for _, e := range entries {
		status := "enabled"
		if !e.Enabled {
			status = "disabled"
		}
		fmt.Fprintf(&b, "%s (%s) — %s, %s\n", e.ChatID, e.Username, e.Role, status)
	}
	return &Reply{Text: b.String()}, nil
}

func adminInfo(ctx context.Context, svc *identity.Service, args string) (*Reply, error) {
	chatID, _ := splitWord(args)
	if chatID == "" {
		return &Reply{Text: "Usage: /admin info <chat_id>"}, nil
	}
	e, err := svc.GetAllowlistEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return &Reply{Text: fmt.Sprintf("chat_id=%s username=%s role=%s enabled=%v permissions=%v", e.ChatID, e.Username, e.Role, e.Enabled, e.Permissions)}, nil
}

func adminSetEnabled(ctx context.Context, svc *identity.Service, actorChatID, args string, enabled bool) (*Reply, error) {
	chatID, _ := splitWord(args)
	if chatID == "" {
		return &Reply{Text: "Usage: /admin enable|disable <chat_id>"}, nil
	}
	if err := svc.AllowlistSetEnabled(ctx, actorChatID, chatID, enabled); err != nil {
		return nil, err
	}
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	return &Reply{Text: fmt.Sprintf("%s is now %s.", chatID, verb)}, nil
}

func adminSetRole(ctx context.Context, svc *identity.Service, actorChatID, args string, role identity.Role) (*Reply, error) {
	chatID, _ := splitWord(args)
	if chatID == "" {
		return &Reply{Text: "Usage: /admin promote|demote <chat_id>"}, nil
	}
	if err := svc.AllowlistSetRole(ctx, actorChatID, chatID, role); err != nil {
		return nil, err
	}
	return &Reply{Text: fmt.Sprintf("%s is now role %s.", chatID, role)}, nil
}

func adminStats(ctx context.Context, svc *identity.Service) (*Reply, error) {
	entries, err := svc.ListAllowlist(ctx)
	if err != nil {
		return nil, err
	}
	enabled, admins := 0, 0
	for _, e := range entries {
		if e.Enabled {
			enabled++
		}
		if e.Role == identity.RoleAdmin {
			admins++
		}
	}
	return &Reply{Text: fmt.Sprintf("allowlist entries: %d (enabled: %d, admins: %d)", len(entries), enabled, admins)}, nil
}

func adminBroadcast(ctx context.Context, svc *identity.Service, broadcast BroadcastFunc, actorChatID, text string) (*Reply, error) {
	if text == "" {
		return &Reply{Text: "Usage: /admin broadcast <message>"}, nil
	}
	entries, err := svc.ListAllowlist(ctx)
	if err != nil {
		return nil, err
	}
	sent := broadcast(ctx, entries, actorChatID, text)
	return &Reply{Text: fmt.Sprintf("Broadcast sent to %d recipients.", sent)}, nil
}

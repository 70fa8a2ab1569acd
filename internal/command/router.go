// Package command implements the Telegram slash-command surface: a
// first-match-wins registry with a permission gate in front of every
// handler, mirroring the division of responsibility the original bot
// used (the decorator checks permission and sends the denial itself;
// the wrapped handler only ever runs once access is granted).
package command

import (
	"context"
	"strings"

	"relay/internal/identity"
)

// Message is the minimal shape a command handler needs out of an inbound
// Telegram update; ingress/telegram builds one from the webhook payload.
type Message struct {
	ChatID   string
	Username string
	Text     string
}

// Reply is what a Handler asks the caller to send back.
type Reply struct {
	Text string
}

// Handler processes one command invocation. args is everything after the
// command name itself (trimmed, may be empty).
type Handler func(ctx context.Context, msg Message, args string) (*Reply, error)

// Command pairs a handler with the permission level required to invoke it.
type Command struct {
	Name       string
	Permission identity.PermissionLevel
	Handler    Handler
}

// Router dispatches "/name ..." text to the first registered Command whose
// Name matches, after checking permission.
type Router struct {
	commands []Command
	identity *identity.Service
}

// NewRouter constructs a Router backed by svc for permission checks.
func NewRouter(svc *identity.Service) *Router {
	return &Router{identity: svc}
}

// Register adds a command. Order matters only in that the first
// registered match wins; commands are expected to have distinct names.
func (r *Router) Register(c Command) {
	r.commands = append(r.commands, c)
}

// Dispatch parses msg.Text as "/name rest-of-line" and runs the matching
// command's permission gate then handler. It returns (nil, nil) when the
// text is not a recognized command, so callers can fall through to normal
// message processing.
func (r *Router) Dispatch(ctx context.Context, msg Message) (*Reply, error) {
	name, args, ok := splitCommand(msg.Text)
	if !ok {
		return nil, nil
	}

	for _, c := range r.commands {
		if c.Name != name {
			continue
		}
		if !r.identity.CheckTelegramPermission(ctx, msg.ChatID, c.Permission) {
			return &Reply{Text: permissionDeniedMessage(c.Permission)}, nil
		}
		return c.Handler(ctx, msg, args)
	}
	return nil, nil
}

func splitCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	text = strings.TrimPrefix(text, "/")
	parts := strings.SplitN(text, " ", 2)
	name = parts[0]
	if name == "" {
		return "", "", false
	}
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}

func permissionDeniedMessage(required identity.PermissionLevel) string {
	switch required {
	case identity.PermissionAdmin:
		return "This command requires administrator access."
	case identity.PermissionAllowlist:
		return "This command is restricted to allowlisted users."
	default:
		return "Permission denied."
	}
}

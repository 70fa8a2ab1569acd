package command

import (
	"context"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/identity"
)

const redacted = "[REDACTED]"

// RawEventProvider supplies the raw inbound request payload a /debug
// invocation echoes back, keyed by chat id (the router has no direct
// access to the webhook request itself).
type RawEventProvider func(chatID string) map[string]interface{}

// NewDebugCommand builds the /debug command: no permission required, it
// echoes the raw webhook event back to the caller with a fixed set of
// sensitive fields redacted.
func NewDebugCommand(rawEvent RawEventProvider) Command {
	return Command{
		Name:       "debug",
		Permission: identity.PermissionNone,
		Handler: func(_ context.Context, msg Message, _ string) (*Reply, error) {
			event := rawEvent(msg.ChatID)
			redactDebugEvent(event)
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(event, "", "  ")
			if err != nil {
				return nil, err
			}
			return &Reply{Text: string(data)}, nil
		},
	}
}

// redactDebugEvent overwrites the fields that would otherwise leak the
// webhook secret or the AWS account id into a chat transcript. It mutates
// a deep copy made by the caller's own JSON round-trip, so it is safe to
// write into nested maps here.
func redactDebugEvent(event map[string]interface{}) {
	if headers, ok := event["headers"].(map[string]interface{}); ok {
		if _, present := headers["X-Telegram-Bot-Api-Secret-Token"]; present {
			headers["X-Telegram-Bot-Api-Secret-Token"] = redacted
		}
	}
	if mvHeaders, ok := event["multiValueHeaders"].(map[string]interface{}); ok {
		if list, present := mvHeaders["X-Telegram-Bot-Api-Secret-Token"].([]interface{}); present {
			for i := range list {
				list[i] = redacted
			}
		}
	}
	if reqCtx, ok := event["requestContext"].(map[string]interface{}); ok {
		if _, present := reqCtx["accountId"]; present {
			reqCtx["accountId"] = redacted
		}
	}
}

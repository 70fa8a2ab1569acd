package telegram

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"
)

// parsedMessage is what the handler needs out of one webhook delivery,
// regardless of whether it came from the typed parse or the fallback
// hand-extraction path.
type parsedMessage struct {
	ChatID       string
	FromID       string
	Username     string
	Text         string
	MessageID    int
	Photo        []tgbotapi.PhotoSize
	Document     *tgbotapi.Document
	Video        *tgbotapi.Video
	Audio        *tgbotapi.Audio
	HasMessage   bool
	UsedFallback bool
}

// parseUpdate attempts the typed parse spec §4.4.1 calls for, falling back
// to hand-extraction of the handful of fields the rest of the pipeline
// actually needs when the payload does not match tgbotapi.Update's shape
// (e.g. a provider schema drift the bot library hasn't caught up with).
func parseUpdate(raw []byte) parsedMessage {
	var update tgbotapi.Update
	err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &update)
	if err == nil && update.Message == nil {
		return parsedMessage{}
	}
	if err == nil {
		m := update.Message
		text := m.Text
		if text == "" {
			text = m.Caption
		}
		pm := parsedMessage{
			HasMessage: true,
			MessageID:  m.MessageID,
			Text:       text,
			Photo:      m.Photo,
			Document:   m.Document,
			Video:      m.Video,
			Audio:      m.Audio,
		}
		if m.Chat != nil {
			pm.ChatID = formatInt64(m.Chat.ID)
		}
		if m.From != nil {
			pm.FromID = formatInt64(m.From.ID)
			pm.Username = m.From.UserName
		}
		return pm
	}

	return fallbackExtract(raw)
}

// fallbackExtract hand-extracts message.chat.id, message.from.username,
// message.text, and message.caption from a generic JSON tree when the
// typed parse fails, per spec §4.4.1. Callers are responsible for emitting
// the WebhookParsingFallback metric.
func fallbackExtract(raw []byte) parsedMessage {
	var generic map[string]interface{}
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &generic); err != nil {
		return parsedMessage{UsedFallback: true}
	}

	message, _ := generic["message"].(map[string]interface{})
	if message == nil {
		return parsedMessage{UsedFallback: true}
	}

	pm := parsedMessage{HasMessage: true, UsedFallback: true}

	if chat, ok := message["chat"].(map[string]interface{}); ok {
		pm.ChatID = stringifyNumber(chat["id"])
	}
	if from, ok := message["from"].(map[string]interface{}); ok {
		pm.FromID = stringifyNumber(from["id"])
		if u, ok := from["username"].(string); ok {
			pm.Username = u
		}
	}
	if t, ok := message["text"].(string); ok {
		pm.Text = t
	}
	if pm.Text == "" {
		if c, ok := message["caption"].(string); ok {
			pm.Text = c
		}
	}
	return pm
}

func stringifyNumber(v interface{}) string {
	switch n := v.(type) {
	case float64:
		return formatInt64(int64(n))
	case string:
		return n
	default:
		return ""
	}
}

func formatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}

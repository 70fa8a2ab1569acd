// Package telegram implements the Telegram webhook ingress adapter
// (component C4, spec §4.4.1): it authenticates the provider's webhook,
// parses the update, routes slash commands, applies the allowlist, and
// normalizes everything else to a UniversalMessage published on the bus.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	jsoniter "github.com/json-iterator/go"

	"relay/internal/bus"
	"relay/internal/command"
	"relay/internal/envelope"
	"relay/internal/identity"
	"relay/internal/metrics"
	"relay/internal/objectstore"
)

// Config carries the deployment-level knobs the webhook handler needs.
type Config struct {
	WebhookSecret      string
	MaxAttachmentBytes int64
	GetFileTimeout     time.Duration
	DownloadTimeout    time.Duration
}

// Handler is the Telegram webhook adapter. It also implements
// router.TelegramSender, since it owns the only bot.API client in the
// process.
type Handler struct {
	bot     *tgbotapi.BotAPI
	objects *objectstore.Store
	identity *identity.Service
	commands *command.Router
	bus     *bus.Bus
	metrics *metrics.Registry
	cfg     Config
	raw     *rawEventStore
}

// New constructs a Handler. objects may be nil if media upload is not
// configured; in that case attachments of a chat with file_reader are
// still fetched, but carry no s3_url and are not marked permission-denied.
func New(bot *tgbotapi.BotAPI, objects *objectstore.Store, identitySvc *identity.Service, commands *command.Router, b *bus.Bus, m *metrics.Registry, cfg Config) *Handler {
	return &Handler{
		bot:      bot,
		objects:  objects,
		identity: identitySvc,
		commands: commands,
		bus:      b,
		metrics:  m,
		cfg:      cfg,
		raw:      newRawEventStore(),
	}
}

// RawEventProvider returns the command.RawEventProvider /debug needs: the
// generic-map rendering of whichever webhook request is currently
// dispatching a command for chatID.
func (h *Handler) RawEventProvider(chatID string) map[string]interface{} {
	return h.raw.Take(chatID)
}

// webhookResponse is the body shape spec §4.4.1 and §6 require.
type webhookResponse struct {
	Status string `json:"status"`
}

// ServeWebhook is the gin.HandlerFunc for POST /webhook.
func (h *Handler) ServeWebhook(c *gin.Context) {
	if !h.verifySecret(c.Request) {
		c.Status(http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, webhookResponse{Status: "error"})
		return
	}

	pm := parseUpdate(body)
	if pm.UsedFallback {
		h.metrics.Incr(metrics.WebhookParsingFallback)
	}
	if !pm.HasMessage {
		// Non-message updates (e.g. callback queries) are accepted but
		// otherwise ignored; this adapter only speaks chat messages.
		c.JSON(http.StatusOK, webhookResponse{Status: "ok"})
		return
	}

	ctx := c.Request.Context()
	trimmed := strings.TrimSpace(pm.Text)

	if strings.HasPrefix(trimmed, "/") {
		h.raw.Put(pm.ChatID, buildRawEventMap(c.Request, body))
		reply, err := h.commands.Dispatch(ctx, command.Message{ChatID: pm.ChatID, Username: pm.Username, Text: trimmed})
		h.raw.Take(pm.ChatID) // discard if the handler never consumed it
		if reply != nil || err != nil {
			if reply != nil && reply.Text != "" {
				if sendErr := h.SendText(ctx, pm.ChatID, reply.Text); sendErr != nil {
					slog.Warn("telegram: failed to send command reply", "chat_id", pm.ChatID, "error", sendErr)
				}
			} else if err != nil {
				slog.Warn("telegram: command handler failed", "chat_id", pm.ChatID, "error", err)
			}
			c.JSON(http.StatusOK, webhookResponse{Status: "command_handled"})
			return
		}
		// Dispatch returned (nil, nil): not a recognized command, fall
		// through to normal message processing.
	}

	entry, allowed := h.identity.IsAllowed(ctx, pm.ChatID)
	if !allowed {
		c.JSON(http.StatusOK, webhookResponse{Status: "ignored"})
		return
	}

	attachments := h.collectAttachments(ctx, pm, entry)

	msg := envelope.UniversalMessage{
		MessageID: envelope.NewMessageID(),
		Timestamp: time.Now().UTC(),
		Channel: envelope.Channel{
			Type:      envelope.ChannelTelegram,
			ChannelID: pm.ChatID,
		},
		User: envelope.User{
			ID:            "tg:" + pm.ChatID,
			ChannelUserID: pm.FromID,
			Username:      pm.Username,
		},
		Content: envelope.Content{
			Text:        pm.Text,
			MessageType: contentType(attachments),
			Attachments: attachments,
		},
	}

	// Dual-write: mirror the raw body to the legacy queue, then publish the
	// stripped envelope to the bus. Both are in-process, non-blocking
	// publishes (see internal/bus), so there is no durable-retry path to
	// fall back to on a publish failure per spec §4.6 — a dropped event is
	// logged by the bus itself and surfaced only through its drop counter.
	h.bus.Publish(bus.TopicLegacyTelegramRaw, body)
	h.bus.Publish(bus.TopicMessageReceived, msg.StripRaw())

	c.JSON(http.StatusOK, webhookResponse{Status: "ok"})
}

func (h *Handler) verifySecret(r *http.Request) bool {
	if h.cfg.WebhookSecret == "" {
		return true // verification disabled: development posture
	}
	got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	return got == h.cfg.WebhookSecret
}

func contentType(attachments []envelope.Attachment) envelope.MessageType {
	if len(attachments) == 0 {
		return envelope.MessageTypeText
	}
	switch attachments[0].Type {
	case "photo":
		return envelope.MessageTypeImage
	case "video":
		return envelope.MessageTypeVideo
	case "audio":
		return envelope.MessageTypeAudio
	default:
		return envelope.MessageTypeFile
	}
}

// collectAttachments implements the media-permission gate of spec §4.4.1:
// with file_reader, download and upload to object storage under
// {chat_id}/{message_id}/{filename}; without it, attach with
// permission_denied and proceed with text only.
func (h *Handler) collectAttachments(ctx context.Context, pm parsedMessage, entry *identity.AllowlistEntry) []envelope.Attachment {
	kind, fileID, fileName, mimeType := mediaOf(pm)
	if kind == "" {
		return nil
	}

	if !entry.HasPermission("file_reader") {
		return []envelope.Attachment{{Type: kind, FileID: fileID, FileName: fileName, MimeType: mimeType, PermissionDenied: true}}
	}

	att := envelope.Attachment{Type: kind, FileID: fileID, FileName: fileName, MimeType: mimeType}

	getCtx, cancel := context.WithTimeout(ctx, orDefault(h.cfg.GetFileTimeout, 10*time.Second))
	defer cancel()
	file, err := h.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	_ = getCtx // the bot library's GetFile takes no context, so this timeout does not bound the call above
	if err != nil {
		slog.Warn("telegram: getFile failed", "file_id", fileID, "error", err)
		return []envelope.Attachment{att}
	}

	if int64(file.FileSize) > h.cfg.MaxAttachmentBytes {
		slog.Warn("telegram: attachment exceeds size cap, skipping download", "file_id", fileID, "size", file.FileSize)
		return []envelope.Attachment{att}
	}
	att.FileSize = int64(file.FileSize)

	data, err := h.download(ctx, file.Link(h.bot.Token))
	if err != nil {
		slog.Warn("telegram: attachment download failed", "file_id", fileID, "error", err)
		return []envelope.Attachment{att}
	}

	if h.objects == nil {
		return []envelope.Attachment{att}
	}

	key := fmt.Sprintf("%s/%d/%s", pm.ChatID, pm.MessageID, fallbackFileName(fileName, fileID))
	url, err := h.objects.Put(ctx, key, data, mimeType)
	if err != nil {
		slog.Warn("telegram: attachment upload failed", "key", key, "error", err)
		return []envelope.Attachment{att}
	}
	att.S3URL = url
	return []envelope.Attachment{att}
}

func fallbackFileName(name, fileID string) string {
	if name != "" {
		return name
	}
	return fileID
}

func (h *Handler) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, orDefault(h.cfg.DownloadTimeout, 30*time.Second))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxAttachmentBytes+1))
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// mediaOf picks the highest-priority media item on a message, matching
// the provider's own precedence (photos arrive most often, so they are
// checked first).
func mediaOf(pm parsedMessage) (kind, fileID, fileName, mimeType string) {
	if len(pm.Photo) > 0 {
		p := pm.Photo[len(pm.Photo)-1]
		return "photo", p.FileID, "", ""
	}
	if pm.Document != nil {
		return "document", pm.Document.FileID, pm.Document.FileName, pm.Document.MimeType
	}
	if pm.Video != nil {
		return "video", pm.Video.FileID, "", pm.Video.MimeType
	}
	if pm.Audio != nil {
		return "audio", pm.Audio.FileID, pm.Audio.FileName, pm.Audio.MimeType
	}
	return "", "", "", ""
}

// SendText implements router.TelegramSender.
func (h *Handler) SendText(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	_, err = h.bot.Send(tgbotapi.NewMessage(id, text))
	return err
}

// Broadcast implements command.BroadcastFunc: send text to every enabled
// allowlist entry except selfChatID, returning the count of successful
// deliveries.
func (h *Handler) Broadcast(ctx context.Context, entries []identity.AllowlistEntry, selfChatID, text string) int {
	sent := 0
	for _, e := range entries {
		if !e.Enabled || e.ChatID == selfChatID {
			continue
		}
		if err := h.SendText(ctx, e.ChatID, text); err != nil {
			slog.Warn("telegram: broadcast delivery failed", "chat_id", e.ChatID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func buildRawEventMap(r *http.Request, body []byte) map[string]interface{} {
	var payload map[string]interface{}
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(body, &payload)
	if payload == nil {
		payload = map[string]interface{}{}
	}

	headers := map[string]interface{}{}
	for k, v := range r.Header {
		if len(v) == 1 {
			headers[k] = v[0]
		} else {
			vals := make([]interface{}, len(v))
			for i, s := range v {
				vals[i] = s
			}
			headers[k] = vals
		}
	}

	event := map[string]interface{}{
		"headers": headers,
		"body":    payload,
		"requestContext": map[string]interface{}{
			"accountId": "000000000000",
		},
	}
	return event
}

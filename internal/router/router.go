package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/bus"
	"relay/internal/connreg"
	"relay/internal/envelope"
	"relay/internal/history"
	"relay/internal/metrics"
)

// Router is the response router (component C7): it consumes
// message.completed/message.failed, formats and delivers a reply per
// channel, persists both turns to history, and emits metrics.
type Router struct {
	bus       *bus.Bus
	telegram  TelegramSender
	web       WebSender
	connreg   *connreg.Registry
	history   *history.Service
	metrics   *metrics.Registry
	msgLimit  int
}

// New constructs a Router. msgLimit is the Telegram per-message character
// cap (4096 per spec, overridable via system config for tests).
func New(b *bus.Bus, telegram TelegramSender, web WebSender, connreg *connreg.Registry, h *history.Service, m *metrics.Registry, msgLimit int) *Router {
	if msgLimit <= 0 {
		msgLimit = telegramMaxLen
	}
	return &Router{bus: b, telegram: telegram, web: web, connreg: connreg, history: h, metrics: m, msgLimit: msgLimit}
}

// Run subscribes to message.completed and message.failed and handles
// events until ctx is canceled. Meant to run in its own goroutine.
func (r *Router) Run(ctx context.Context) {
	completed := r.bus.Subscribe(bus.TopicMessageCompleted)
	failed := r.bus.Subscribe(bus.TopicMessageFailed)
	defer r.bus.Unsubscribe(completed)
	defer r.bus.Unsubscribe(failed)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-completed.Ch():
			if !ok {
				return
			}
			r.dispatch(ctx, ev)
		case ev, ok := <-failed.Ch():
			if !ok {
				return
			}
			r.dispatch(ctx, ev)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, ev bus.Event) {
	completion, ok := ev.Payload.(envelope.CompletionEvent)
	if !ok {
		return
	}
	r.Handle(ctx, completion)
}

// Handle runs the 6-step algorithm of spec §4.7 for a single completion
// event. Exported so tests and a non-bus caller can drive it directly.
func (r *Router) Handle(ctx context.Context, ev envelope.CompletionEvent) {
	start := time.Now()

	// Step 1: validate.
	if !ev.Valid() {
		r.metrics.Incr(metrics.RouterInvalidEvent)
		return
	}

	channel := string(ev.Channel.Type)

	// Step 2: select strategy.
	switch ev.Channel.Type {
	case envelope.ChannelTelegram, envelope.ChannelWeb:
		// supported, fall through
	default:
		r.metrics.Incr(metrics.RouterUnsupportedChannel)
		r.metrics.Incr(metrics.RouterFailure)
		return
	}

	// Step 3 + 4: format and deliver.
	var deliverErr error
	switch ev.Channel.Type {
	case envelope.ChannelTelegram:
		deliverErr = r.deliverTelegram(ctx, ev)
	case envelope.ChannelWeb:
		deliverErr = r.deliverWeb(ctx, ev)
	}

	r.metrics.Observe("RouterDuration", time.Since(start))

	if deliverErr != nil {
		slog.Warn("router delivery failed", "message_id", ev.MessageID, "channel", channel, "error", deliverErr)
		r.metrics.Incr(metrics.RouterFailure)
		r.metrics.Incr(metrics.ChannelCounter(channel, false))
		return
	}

	r.metrics.Incr(metrics.RouterSuccess)
	r.metrics.Incr(metrics.ChannelCounter(channel, true))

	// Step 5: persist history. Best-effort; a failure here must not
	// invalidate the delivery that already happened.
	if !ev.Failed {
		r.persistHistory(ctx, ev)
	}
}

func (r *Router) deliverTelegram(ctx context.Context, ev envelope.CompletionEvent) error {
	chatID := strings.TrimPrefix(ev.Channel.ChannelID, "tg:")
	if chatID == "" {
		chatID = strings.TrimPrefix(ev.User.ID, "tg:")
	}
	if _, err := strconv.ParseInt(chatID, 10, 64); err != nil {
		return err
	}

	text := r.formatForTelegramFailureAware(ev)
	parts := SplitForSend(text, r.msgLimit)

	if len(parts) == 1 {
		return r.telegram.SendText(ctx, chatID, parts[0])
	}
	for i, part := range parts {
		numbered := part + "\n\n(part " + strconv.Itoa(i+1) + "/" + strconv.Itoa(len(parts)) + ")"
		if err := r.telegram.SendText(ctx, chatID, numbered); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) formatForTelegramFailureAware(ev envelope.CompletionEvent) string {
	if ev.Failed {
		return FriendlyFailureMessage(ev.ErrorMessage)
	}
	return FormatTelegram(ev.ResponseText, ev.Metadata)
}

type webFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func (r *Router) deliverWeb(ctx context.Context, ev envelope.CompletionEvent) error {
	content := ev.ResponseText
	if ev.Failed {
		content = FriendlyFailureMessage(ev.ErrorMessage)
	}

	frame := webFrame{
		Type:      "message",
		Content:   content,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(frame)
	if err != nil {
		return err
	}

	gone, err := r.web.SendFrame(ctx, ev.Channel.ChannelID, data)
	if gone {
		_ = r.connreg.Disconnect(ctx, ev.Channel.ChannelID)
	}
	return err
}

func (r *Router) persistHistory(ctx context.Context, ev envelope.CompletionEvent) {
	uid := ev.User.UnifiedUserID
	if uid == "" {
		return
	}

	now := time.Now().UTC()
	conv, err := r.history.AssignConversation(ctx, uid, ev.ConversationID, ev.OriginalText, now)
	if err != nil {
		slog.Warn("failed to assign conversation", "unified_user_id", uid, "error", err)
		return
	}

	userAttachments := make([]history.Attachment, 0, len(ev.OriginalAttachments))
	for _, a := range ev.OriginalAttachments {
		userAttachments = append(userAttachments, history.Attachment{Type: a.Type, FileName: a.FileName, S3URL: a.S3URL})
	}

	if err := r.history.RecordTurn(ctx, uid, string(ev.Channel.Type), conv, ev.OriginalText, ev.ResponseText, userAttachments, now); err != nil {
		slog.Warn("failed to persist turn", "unified_user_id", uid, "error", err)
	}
}

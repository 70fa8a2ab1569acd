package router

import "context"

// TelegramSender is the narrow seam the router needs onto the Telegram Bot
// API (spec §4.7 step 4): strip the "tg:" prefix and send numbered parts
// when a reply is split.
type TelegramSender interface {
	SendText(ctx context.Context, chatID, text string) error
}

// WebSender is the narrow seam the router needs onto live WebSocket
// connections (spec §4.7 step 4): post a JSON frame, reporting whether the
// gateway says the connection is gone so the caller can evict it from the
// registry.
type WebSender interface {
	SendFrame(ctx context.Context, connectionID string, frame []byte) (gone bool, err error)
}

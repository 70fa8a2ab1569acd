package processor

import (
	"context"
	"log/slog"
	"time"

	"relay/internal/bus"
	"relay/internal/envelope"
)

// Pump is the dispatch-fabric glue (spec §4.6): it subscribes to
// message.received, hands each UniversalMessage to a Processor, and
// publishes message.completed or message.failed with the result. It is the
// one piece of C6 that touches both sides of the bus; the Processor itself
// is the external collaborator.
type Pump struct {
	bus       *bus.Bus
	processor Processor
	timeout   time.Duration
}

// NewPump constructs a Pump. timeout bounds how long a single Process call
// may run before the pump gives up and publishes message.failed itself.
func NewPump(b *bus.Bus, p Processor, timeout time.Duration) *Pump {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pump{bus: b, processor: p, timeout: timeout}
}

// Run subscribes to message.received and processes events until ctx is
// canceled. It is meant to run in its own goroutine.
func (p *Pump) Run(ctx context.Context) {
	sub := p.bus.Subscribe(bus.TopicMessageReceived)
	defer p.bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			msg, ok := ev.Payload.(envelope.UniversalMessage)
			if !ok {
				continue
			}
			go p.handle(ctx, msg)
		}
	}
}

func (p *Pump) handle(ctx context.Context, msg envelope.UniversalMessage) {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.processor.Process(reqCtx, &msg)

	completion := envelope.CompletionEvent{
		MessageID:           msg.MessageID,
		Channel:             msg.Channel,
		User:                msg.User,
		ConversationID:      msg.Context.ConversationID,
		OriginalText:        msg.Content.Text,
		OriginalAttachments: msg.Content.Attachments,
	}

	if err != nil {
		slog.Warn("processor failed", "message_id", msg.MessageID, "error", err)
		completion.Failed = true
		completion.ErrorMessage = err.Error()
		p.bus.Publish(bus.TopicMessageFailed, completion)
		return
	}

	completion.ResponseText = result.Text
	completion.ResponseAttachments = result.Attachments
	p.bus.Publish(bus.TopicMessageCompleted, completion)
}

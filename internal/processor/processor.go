// Package processor defines the boundary between the gateway and whatever
// produces a reply for a UniversalMessage. The gateway only depends on
// this interface; agent/LLM internals live on the other side of it and
// are out of scope here.
package processor

import (
	"context"

	"relay/internal/envelope"
)

// Result is what a Processor hands back to the router for delivery.
type Result struct {
	Text        string
	Attachments []envelope.Attachment
}

// Processor turns an inbound message into a reply. Implementations may
// call out to an LLM, a rules engine, or anything else; the gateway only
// cares that it returns a Result or an error within ctx's deadline.
type Processor interface {
	Process(ctx context.Context, msg *envelope.UniversalMessage) (*Result, error)
}

// Echo is a minimal Processor used to exercise the bus and router without
// a real backend wired in: it replies with the inbound text unchanged.
type Echo struct{}

// NewEcho constructs an Echo processor.
func NewEcho() *Echo { return &Echo{} }

func (Echo) Process(_ context.Context, msg *envelope.UniversalMessage) (*Result, error) {
	return &Result{Text: msg.Content.Text}, nil
}

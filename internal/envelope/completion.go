package envelope

// CompletionEvent is the detail carried by message.completed / message.failed
// (spec §4.6): the processor's reply (or its failure), enough of the
// original turn for the router to reconstruct the user's history row, and
// whatever metadata the processor wants surfaced in a channel footer.
type CompletionEvent struct {
	MessageID      string `json:"messageId"`
	Channel        Channel `json:"channel"`
	User           User    `json:"user"`
	ConversationID string `json:"conversationId,omitempty"`

	// OriginalText/OriginalAttachments let the router write the user's turn
	// to history without round-tripping through the bus a second time.
	OriginalText        string       `json:"originalText"`
	OriginalAttachments []Attachment `json:"originalAttachments,omitempty"`

	// Response is set on message.completed, empty on message.failed.
	ResponseText        string       `json:"response,omitempty"`
	ResponseAttachments []Attachment `json:"responseAttachments,omitempty"`

	// Failed marks this as a message.failed detail; ErrorMessage is the
	// internal failure reason, logged only, never shown to a channel
	// verbatim (the router maps it to the friendly taxonomy in spec §7).
	Failed       bool   `json:"failed,omitempty"`
	ErrorMessage string `json:"error,omitempty"`

	// Metadata carries optional processing_time/model/tokens_used values a
	// formatter may fold into a footer.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Valid reports whether the event carries the fields the router's validate
// step (spec §4.7 step 1) requires.
func (e *CompletionEvent) Valid() bool {
	if e == nil {
		return false
	}
	return e.MessageID != "" && e.Channel.Type != "" && e.User.ID != ""
}

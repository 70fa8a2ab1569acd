// Package router implements the response router (component C7): it
// consumes message.completed/message.failed, formats a reply per channel,
// delivers it, persists both turns to history, and emits metrics —
// following the 6-step algorithm and state machine of spec §4.7.
package router

import (
	"fmt"
	"regexp"
	"strings"
)

// telegramMaxLen is Telegram's hard message-length ceiling; a formatted
// reply longer than this is split into numbered parts on delivery
// (TruncateAtParagraph is not on the delivery path), per the boundary behavior
// in spec §8 ("a reply of length 4096 is sent unsplit").
const telegramMaxLen = 4096

// truncationNote is appended, visibly, when a formatted reply is cut down
// to fit a single message.
const truncationNote = "\n\n[... truncated]"

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// FormatTelegram implements spec §4.7 step 3 for the Telegram channel:
// collapse runs of 3+ blank lines to 2, strip trailing whitespace, and
// optionally append a metadata footer. The result is NOT yet split —
// deliverTelegram splits it with SplitForSend, since splitting only applies
// to the outbound send path, not every formatted string. It is never truncated.
func FormatTelegram(text string, meta map[string]interface{}) string {
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimRight(text, " \t\n\r")

	if footer := metadataFooter(meta); footer != "" {
		text += "\n\n" + footer
	}
	return text
}

func metadataFooter(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	var parts []string
	if pt, ok := meta["processing_time"]; ok {
		parts = append(parts, fmt.Sprintf("processing_time=%v", pt))
	}
	if m, ok := meta["model"]; ok {
		parts = append(parts, fmt.Sprintf("model=%v", simplifyModel(m)))
	}
	if tu, ok := meta["tokens_used"]; ok {
		parts = append(parts, fmt.Sprintf("tokens_used=%v", tu))
	}
	if len(parts) == 0 {
		return ""
	}
	return "_" + strings.Join(parts, " · ") + "_"
}

// simplifyModel trims a provider-qualified model id ("provider/model-v2")
// down to its last path segment, matching the footer the original bot
// rendered for end users.
func simplifyModel(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// TruncateAtParagraph truncates text at the last paragraph break (blank
// line) at or before max-100 runes, appending a visible truncation note,
// per spec §4.7 step 3 / §8's "truncate at the nearest newline at or
// before 3996" boundary.
func TruncateAtParagraph(text string, max int) string {
	limit := max - 100
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	if limit < 0 {
		limit = 0
	}
	head := string(r[:min(limit, len(r))])

	cut := strings.LastIndex(head, "\n\n")
	if cut < 0 {
		cut = strings.LastIndex(head, "\n")
	}
	if cut < 0 {
		cut = len(head)
	}
	return head[:cut] + truncationNote
}

// SplitForSend splits text into chunks no longer than limit runes each,
// preferring to break at the last newline at or before the limit so a
// line is never cut mid-word when a boundary is available.
func SplitForSend(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}

	var parts []string
	for len(r) > 0 {
		if len(r) <= limit {
			parts = append(parts, string(r))
			break
		}
		chunk := string(r[:limit])
		cut := strings.LastIndex(chunk, "\n")
		if cut <= 0 {
			cut = limit
		} else {
			cut = len([]rune(chunk[:cut])) // byte offset -> rune offset
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
		r = []rune(strings.TrimLeft(string(r), "\n"))
	}
	return parts
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

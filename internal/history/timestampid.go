package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// NewTimestampMsgID mints a fresh "<ISO-8601 UTC>#<uuid>" key for t.
func NewTimestampMsgID(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "#" + uuid.NewString()
}

// ParseTimestampMsgID extracts the timestamp component of id.
func ParseTimestampMsgID(id string) (time.Time, error) {
	parts := strings.SplitN(id, "#", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed timestamp_msgid: %q", id)
	}
	return time.Parse(timestampLayout, parts[0])
}

package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUpdateTypedMessage(t *testing.T) {
	raw := []byte(`{
		"update_id": 1,
		"message": {
			"message_id": 42,
			"text": "hello",
			"chat": {"id": 555},
			"from": {"id": 777, "username": "alice"}
		}
	}`)

	pm := parseUpdate(raw)
	assert.True(t, pm.HasMessage)
	assert.False(t, pm.UsedFallback)
	assert.Equal(t, "555", pm.ChatID)
	assert.Equal(t, "777", pm.FromID)
	assert.Equal(t, "alice", pm.Username)
	assert.Equal(t, "hello", pm.Text)
}

func TestParseUpdateFallsBackOnShapeDrift(t *testing.T) {
	// A payload tgbotapi.Update cannot parse as a message (e.g. an
	// unexpected extra wrapper) still yields the fields the pipeline
	// needs via hand-extraction.
	raw := []byte(`{
		"message": {
			"chat": {"id": 555},
			"from": {"id": 777, "username": "alice"},
			"caption": "a photo caption",
			"photo": "not-an-array"
		}
	}`)

	pm := parseUpdate(raw)
	assert.True(t, pm.HasMessage)
	assert.True(t, pm.UsedFallback)
	assert.Equal(t, "555", pm.ChatID)
	assert.Equal(t, "777", pm.FromID)
	assert.Equal(t, "a photo caption", pm.Text)
}

func TestParseUpdateNoMessage(t *testing.T) {
	raw := []byte(`{"update_id": 1, "callback_query": {"id": "abc"}}`)
	pm := parseUpdate(raw)
	assert.False(t, pm.HasMessage)
}

func TestParseUpdateMalformedJSON(t *testing.T) {
	pm := parseUpdate([]byte("not json"))
	assert.False(t, pm.HasMessage)
	assert.True(t, pm.UsedFallback)
}

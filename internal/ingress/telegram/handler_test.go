package telegram

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/bus"
	"relay/internal/command"
	"relay/internal/envelope"
	"relay/internal/identity"
	"relay/internal/metrics"
	"relay/internal/store/memkv"
)

func newTestHandler(t *testing.T) (*Handler, *identity.Service, *bus.Bus) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := memkv.New()
	identityStore := identity.NewStore(kv)
	jwtSvc := identity.NewJWTService("secret", 0)
	hasher := identity.NewPasswordHasher(4)
	rl := identity.NewLoginRateLimiter(kv, 5, 0)
	identitySvc := identity.NewService(identityStore, jwtSvc, hasher, rl, func() string { return "uid-1" })

	commands := command.NewRouter(identitySvc)
	b := bus.New()
	m := metrics.New()

	h := New(nil, nil, identitySvc, commands, b, m, Config{WebhookSecret: "s3cr3t"})
	return h, identitySvc, b
}

func postWebhook(h *Handler, body string, secret string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	c.Request = req
	h.ServeWebhook(c)
	return w
}

func TestServeWebhookRejectsBadSecret(t *testing.T) {
	h, _, _ := newTestHandler(t)
	w := postWebhook(h, `{}`, "wrong")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServeWebhookIgnoresUnallowedChat(t *testing.T) {
	h, _, _ := newTestHandler(t)
	body := `{"message":{"chat":{"id":1},"from":{"id":1,"username":"bob"},"text":"hi"}}`
	w := postWebhook(h, body, "s3cr3t")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
}

func TestServeWebhookPublishesForAllowlistedChat(t *testing.T) {
	h, identitySvc, b := newTestHandler(t)
	require.NoError(t, identitySvc.AllowlistAdd(t.Context(), "1", "bob"))

	sub := b.Subscribe(bus.TopicMessageReceived)
	defer b.Unsubscribe(sub)

	body := `{"message":{"chat":{"id":1},"from":{"id":1,"username":"bob"},"text":"hello there"}}`
	w := postWebhook(h, body, "s3cr3t")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)

	select {
	case ev := <-sub.Ch():
		msg, ok := ev.Payload.(envelope.UniversalMessage)
		require.True(t, ok)
		assert.Equal(t, "hello there", msg.Content.Text)
		assert.Equal(t, envelope.ChannelTelegram, msg.Channel.Type)
	default:
		t.Fatal("expected a message.received event")
	}
}

func TestVerifySecretDisabledWhenEmpty(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.cfg.WebhookSecret = ""
	req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	assert.True(t, h.verifySecret(req))
}

func TestContentTypeDefaultsToText(t *testing.T) {
	assert.Equal(t, envelope.MessageTypeText, contentType(nil))
}

func TestContentTypeImageForPhoto(t *testing.T) {
	atts := []envelope.Attachment{{Type: "photo"}}
	assert.Equal(t, envelope.MessageTypeImage, contentType(atts))
}

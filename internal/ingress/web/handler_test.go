package web_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/bus"
	"relay/internal/connreg"
	"relay/internal/history"
	"relay/internal/identity"
	"relay/internal/ingress/web"
	"relay/internal/store/memkv"
)

func newTestServer(t *testing.T) (*httptest.Server, *identity.Service, *bus.Bus, *web.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	kv := memkv.New()
	identityStore := identity.NewStore(kv)
	jwtSvc := identity.NewJWTService("secret", time.Hour)
	hasher := identity.NewPasswordHasher(4)
	rl := identity.NewLoginRateLimiter(kv, 5, time.Minute)
	identitySvc := identity.NewService(identityStore, jwtSvc, hasher, rl, func() string { return "uid-1" })

	historyStore := history.NewStore(kv, 0)
	historySvc := history.NewService(historyStore, 50, func() string { return "conv-1" })

	reg := connreg.New(kv, time.Hour)
	b := bus.New()

	h := web.New(identitySvc, historySvc, reg, b)

	engine := gin.New()
	engine.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return srv, identitySvc, b, h
}

func mustToken(t *testing.T, svc *identity.Service) string {
	t.Helper()
	require.NoError(t, svc.Store().PutWebUser(t.Context(), &identity.WebUser{
		Email:        "alice@example.com",
		PasswordHash: mustHash(t),
		Enabled:      true,
		Role:         identity.RoleUser,
	}))
	result, err := svc.Login(t.Context(), "alice@example.com", "GoodPass1")
	require.NoError(t, err)
	return result.Token
}

func mustHash(t *testing.T) string {
	t.Helper()
	hasher := identity.NewPasswordHasher(4)
	hash, err := hasher.Hash("GoodPass1")
	require.NoError(t, err)
	return hash
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestServeWSRoundTripPublishesMessage(t *testing.T) {
	srv, identitySvc, b, _ := newTestServer(t)
	token := mustToken(t, identitySvc)

	sub := b.Subscribe(bus.TopicMessageReceived)
	defer b.Unsubscribe(sub)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// First frame off the wire is the server's "connected" handshake.
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "connected")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"sendMessage","message":"hello"}`)))

	select {
	case ev := <-sub.Ch():
		assert.Equal(t, bus.TopicMessageReceived, ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a message.received event")
	}
}

func TestSendFrameReportsGoneForUnknownConnection(t *testing.T) {
	_, _, _, h := newTestServer(t)
	gone, err := h.SendFrame(t.Context(), "never-connected", []byte(`{}`))
	assert.True(t, gone)
	assert.Error(t, err)
}

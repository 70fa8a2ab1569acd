// Package web implements the Web WebSocket ingress adapter (component C4,
// spec §4.4.2): one long-lived gorilla/websocket connection per browser
// tab, registered in the connection registry so the response router can
// address it by connection id from any goroutine.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"relay/internal/bus"
	"relay/internal/connreg"
	"relay/internal/envelope"
	"relay/internal/history"
	"relay/internal/identity"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn serializes writes against gorilla/websocket, which forbids
// concurrent writers on the same connection.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *safeConn) writeJSON(v interface{}) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return err
	}
	return c.writeRaw(data)
}

func (c *safeConn) writeRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteMessage(websocket.TextMessage, data)
}

// Handler is the Web WebSocket adapter. It also implements
// router.WebSender, since it owns the process's live connection table.
type Handler struct {
	identity *identity.Service
	history  *history.Service
	connreg  *connreg.Registry
	bus      *bus.Bus

	mu    sync.RWMutex
	conns map[string]*safeConn
}

// New constructs a Handler.
func New(identitySvc *identity.Service, historySvc *history.Service, reg *connreg.Registry, b *bus.Bus) *Handler {
	return &Handler{
		identity: identitySvc,
		history:  historySvc,
		connreg:  reg,
		bus:      b,
		conns:    make(map[string]*safeConn),
	}
}

// incomingFrame is the shape a browser client sends over the socket:
// {"action":"sendMessage","message":"..."} per spec §4.4.2/§6.
type incomingFrame struct {
	Action         string `json:"action"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type connectedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// ServeWS is the gin.HandlerFunc for GET /ws. Authentication happens via
// the same bearer JWT the REST surface uses, carried as a query parameter
// since browsers cannot set headers on the WebSocket handshake.
func (h *Handler) ServeWS(c *gin.Context) {
	token := c.Query("token")
	claims, err := h.identity.VerifyToken(token)
	if err != nil {
		c.Status(http.StatusUnauthorized)
		return
	}

	unified, err := h.identity.ResolveOrCreateWebUnifiedUser(c.Request.Context(), claims.Email)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	rawConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("web: upgrade failed", "error", err)
		return
	}
	conn := &safeConn{Conn: rawConn}

	connectionID := uuid.NewString()
	now := time.Now().UTC()

	if err := h.connreg.Connect(context.Background(), connectionID, unified.UnifiedUserID, now); err != nil {
		slog.Warn("web: failed to register connection", "connection_id", connectionID, "error", err)
		_ = conn.Close()
		return
	}

	h.mu.Lock()
	h.conns[connectionID] = conn
	h.mu.Unlock()

	slog.Info("web: connection opened", "connection_id", connectionID, "unified_user_id", unified.UnifiedUserID)
	_ = conn.writeJSON(connectedFrame{Type: "connected", ConnectionID: connectionID})

	defer h.handleDisconnect(connectionID)

	h.readLoop(conn, connectionID, unified.UnifiedUserID, claims.Email)
}

func (h *Handler) handleDisconnect(connectionID string) {
	h.mu.Lock()
	conn, ok := h.conns[connectionID]
	delete(h.conns, connectionID)
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
	_ = h.connreg.Disconnect(context.Background(), connectionID)
	slog.Info("web: connection closed", "connection_id", connectionID)
}

// readLoop implements the $default half of the WebSocket lifecycle: each
// inbound frame is normalized into a UniversalMessage and published to
// message.received. Runs until the client closes the socket or sends a
// frame that fails the transport read.
func (h *Handler) readLoop(conn *safeConn, connectionID, unifiedUserID, email string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				slog.Debug("web: read error, closing", "connection_id", connectionID, "error", err)
			}
			return
		}

		now := time.Now().UTC()
		_ = h.connreg.Touch(context.Background(), connectionID, now)

		var frame incomingFrame
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &frame); err != nil {
			_ = conn.writeJSON(errorFrame{Type: "error", Error: "malformed message"})
			continue
		}
		if frame.Message == "" {
			continue
		}

		msg := envelope.UniversalMessage{
			MessageID: envelope.NewMessageID(),
			Timestamp: now,
			Channel: envelope.Channel{
				Type:      envelope.ChannelWeb,
				ChannelID: connectionID,
			},
			User: envelope.User{
				ID:            "web:" + email,
				ChannelUserID: email,
				Username:      email,
				UnifiedUserID: unifiedUserID,
			},
			Content: envelope.Content{
				Text:        frame.Message,
				MessageType: envelope.MessageTypeText,
			},
			Context: envelope.Context{
				ConversationID: frame.ConversationID,
			},
		}

		h.bus.Publish(bus.TopicMessageReceived, msg.StripRaw())
	}
}

// SendFrame implements router.WebSender: write a pre-formatted JSON frame
// to the live connection for connectionID. gone reports a connection the
// local table no longer holds, so the router can evict it from the
// registry without this package importing connreg itself.
func (h *Handler) SendFrame(_ context.Context, connectionID string, frame []byte) (bool, error) {
	h.mu.RLock()
	conn, ok := h.conns[connectionID]
	h.mu.RUnlock()

	if !ok {
		return true, errors.New("web: connection not held by this process")
	}

	if err := conn.writeRaw(frame); err != nil {
		h.mu.Lock()
		delete(h.conns, connectionID)
		h.mu.Unlock()
		return true, err
	}
	return false, nil
}

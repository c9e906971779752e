package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/events"
	chathandler "github.com/zhouzirui/mira-chat/internal/handler/chat"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler mirrors the SSE stream over a websocket and accepts
// send/name commands from the client on the same connection.
type WebSocketHandler struct {
	chatSvc    *chatService.Service
	subscriber Subscriber
	upgrader   websocket.Upgrader
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatService.Service, subscriber Subscriber) *WebSocketHandler {
	return &WebSocketHandler{
		chatSvc:    chatSvc,
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

type outgoingMessage struct {
	Type      string        `json:"type"`
	Event     *events.Event `json:"event,omitempty"`
	Error     string        `json:"error,omitempty"`
	Status    int           `json:"status,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	f, err := openFeed(ctx, h.chatSvc, h.subscriber, conversationID)
	if err != nil {
		http.Error(w, err.Error(), chathandler.StatusFor(err))
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("[websocket] upgrade failed")
		return
	}
	defer raw.Close()
	conn := &wsConn{conn: raw}

	log.Info().Str("conversation", conversationID).Msg("[websocket] new connection")

	_ = raw.SetReadDeadline(time.Now().Add(readTimeout))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for i := range f.backlog {
		if err := conn.send(outgoingMessage{Type: "event", Event: &f.backlog[i]}); err != nil {
			return
		}
	}

	go h.forward(ctx, cancel, conn, f)
	go h.pingLoop(ctx, conn)

	for {
		var msg inboundMessage
		if err := raw.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conversation", conversationID).Msg("[websocket] read error")
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleMessage(ctx, conn, conversationID, msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *wsConn, conversationID string, msg inboundMessage) {
	var err error
	switch msg.Type {
	case "send":
		_, err = h.chatSvc.Send(ctx, conversationID, msg.Text)
	case "name":
		_, err = h.chatSvc.SetDisplayName(ctx, conversationID, msg.Name)
	case "ping":
		_ = conn.send(outgoingMessage{Type: "pong"})
		return
	default:
		_ = conn.send(outgoingMessage{Type: "error", Error: "unknown message type: " + msg.Type, Status: http.StatusBadRequest})
		return
	}
	if err != nil {
		_ = conn.send(outgoingMessage{Type: "error", Error: err.Error(), Status: chathandler.StatusFor(err)})
	}
}

func (h *WebSocketHandler) forward(ctx context.Context, cancel context.CancelFunc, conn *wsConn, f *feed) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.live:
			if !ok {
				return
			}
			if f.stale(ev) {
				continue
			}
			if err := conn.send(outgoingMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		}
	}
}

func (h *WebSocketHandler) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

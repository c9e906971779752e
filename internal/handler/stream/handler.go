package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/events"
	chathandler "github.com/zhouzirui/mira-chat/internal/handler/chat"
	chatService "github.com/zhouzirui/mira-chat/internal/service/chat"
	"github.com/zhouzirui/mira-chat/pkg/utils"
)

// Subscriber is the read side of the event bus.
type Subscriber interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan events.Event, error)
}

// Handler streams conversation events to browsers via Server-Sent Events and websockets.
type Handler struct {
	chatSvc      *chatService.Service
	subscriber   Subscriber
	heartbeat    time.Duration
	writeTimeout time.Duration
	ws           *WebSocketHandler
}

// New creates a new stream handler
func New(chatSvc *chatService.Service, subscriber Subscriber) *Handler {
	return &Handler{
		chatSvc:      chatSvc,
		subscriber:   subscriber,
		heartbeat:    15 * time.Second,
		writeTimeout: writeTimeout,
		ws:           NewWebSocketHandler(chatSvc, subscriber),
	}
}

// RegisterRoutes mounts the event endpoints under /conversations/{conversationID}.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations/{conversationID}/events", h.handleEvents)
	r.Get("/conversations/{conversationID}/ws", h.ws.handleWebSocket)
}

// feed subscribes first and snapshots second, so an append racing the
// snapshot shows up in the live channel and is filtered by Seq.
type feed struct {
	backlog []events.Event
	live    <-chan events.Event
	lastSeq int
}

func (h *Handler) openFeed(ctx context.Context, conversationID string) (*feed, error) {
	return openFeed(ctx, h.chatSvc, h.subscriber, conversationID)
}

func openFeed(ctx context.Context, chatSvc *chatService.Service, subscriber Subscriber, conversationID string) (*feed, error) {
	conv, err := chatSvc.Conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	live, err := subscriber.Subscribe(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	f := &feed{live: live, lastSeq: -1}
	for _, msg := range conv.Messages() {
		f.backlog = append(f.backlog, events.Appended(msg))
		f.lastSeq = msg.Seq
	}
	f.backlog = append(f.backlog, events.Busy(conversationID, chatSvc.Busy(conversationID)))
	return f, nil
}

// stale reports whether ev repeats a message already sent in the backlog.
func (f *feed) stale(ev events.Event) bool {
	return ev.Type == events.MessageAppended && ev.Message != nil && ev.Message.Seq <= f.lastSeq
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	f, err := h.openFeed(ctx, conversationID)
	if err != nil {
		utils.RespondError(w, chathandler.StatusFor(err), err.Error())
		return
	}

	// Each write gets its own deadline so a viewer that stops reading errors
	// out instead of holding the stream (and its bus subscription) forever.
	rc := http.NewResponseController(w)
	extend := func() {
		_ = rc.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}

	utils.SetupSSEHeaders(w)
	extend()
	w.WriteHeader(http.StatusOK)
	log.Info().Str("conversation", conversationID).Msg("[sse] opening event stream")

	for _, ev := range f.backlog {
		extend()
		if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("conversation", conversationID).Msg("[sse] closing event stream")
			return
		case ev, ok := <-f.live:
			if !ok {
				return
			}
			if f.stale(ev) {
				continue
			}
			extend()
			if err := utils.SendSSEEvent(w, flusher, string(ev.Type), ev); err != nil {
				log.Debug().Err(err).Str("conversation", conversationID).Msg("[sse] write failed")
				return
			}
		case <-ticker.C:
			extend()
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

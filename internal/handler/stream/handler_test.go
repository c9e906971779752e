package stream

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mira-chat/internal/conversation"
	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
	"github.com/zhouzirui/mira-chat/internal/model/persona"
	chatservice "github.com/zhouzirui/mira-chat/internal/service/chat"
	"github.com/zhouzirui/mira-chat/internal/storage"
	"github.com/zhouzirui/mira-chat/internal/webhook"
)

func webhookServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"reply": reply})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupServer(t *testing.T, endpoint string) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	bus := events.NewMemoryBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	svc := chatservice.NewService(
		storage.NewMemoryRepository(endpoint),
		conversation.NewRegistry(bus),
		bus,
		webhook.NewClient(nil, webhook.ModeReply),
		persona.Seed()[0],
		chatservice.Options{Sleep: func(time.Duration) {}},
	)
	require.NoError(t, svc.Start(t.Context()))

	r := chi.NewRouter()
	New(svc, bus).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(svc.Wait)
	return srv, svc
}

type sseReader struct {
	scanner *bufio.Scanner
}

// next returns the next event, skipping comments.
func (s *sseReader) next(t *testing.T) (string, events.Event) {
	t.Helper()
	var name string
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev events.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			return name, ev
		}
	}
	t.Fatalf("stream ended: %v", s.scanner.Err())
	return "", events.Event{}
}

func TestEventsStreamsBacklogThenLiveReply(t *testing.T) {
	hook := webhookServer(t, "coucou")
	srv, svc := setupServer(t, hook.URL)

	conv, err := svc.OpenConversation(t.Context())
	require.NoError(t, err)
	_, err = svc.SetDisplayName(t.Context(), conv.ID(), "Alex")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/conversations/" + conv.ID() + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := &sseReader{scanner: bufio.NewScanner(resp.Body)}

	name, ev := reader.next(t)
	require.Equal(t, string(events.MessageAppended), name)
	require.Equal(t, svc.Persona().OpeningLine, ev.Message.Text)

	_, ev = reader.next(t)
	require.Contains(t, ev.Message.Text, "Alex")

	name, ev = reader.next(t)
	require.Equal(t, string(events.BusyChanged), name)
	require.False(t, *ev.Busy)

	_, err = svc.Send(t.Context(), conv.ID(), "salut")
	require.NoError(t, err)

	var texts []string
	for len(texts) < 2 {
		_, ev := reader.next(t)
		if ev.Type == events.MessageAppended {
			texts = append(texts, ev.Message.Text)
		}
	}
	require.Equal(t, []string{"salut", "coucou"}, texts)
}

func TestEventsUnknownConversation(t *testing.T) {
	srv, _ := setupServer(t, "https://example.test/hook")

	resp, err := http.Get(srv.URL + "/conversations/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFeedDropsRepeatedMessages(t *testing.T) {
	f := &feed{lastSeq: 2}

	require.True(t, f.stale(events.Appended(chat.Message{Seq: 1})))
	require.True(t, f.stale(events.Appended(chat.Message{Seq: 2})))
	require.False(t, f.stale(events.Appended(chat.Message{Seq: 3})))
	require.False(t, f.stale(events.Busy("c", true)))
}

func TestWebSocketSendCommand(t *testing.T) {
	hook := webhookServer(t, "bisous")
	srv, svc := setupServer(t, hook.URL)

	conv, err := svc.OpenConversation(t.Context())
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/conversations/" + conv.ID() + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	readEvent := func() outgoingMessage {
		var msg outgoingMessage
		require.NoError(t, ws.ReadJSON(&msg))
		return msg
	}

	first := readEvent()
	require.Equal(t, "event", first.Type)
	require.Equal(t, svc.Persona().OpeningLine, first.Event.Message.Text)
	require.Equal(t, events.BusyChanged, readEvent().Event.Type)

	// No name yet: the command is refused.
	require.NoError(t, ws.WriteJSON(inboundMessage{Type: "send", Text: "salut"}))
	refused := readEvent()
	require.Equal(t, "error", refused.Type)
	require.Equal(t, http.StatusPreconditionFailed, refused.Status)

	require.NoError(t, ws.WriteJSON(inboundMessage{Type: "name", Name: "Alex"}))
	greeting := readEvent()
	require.Contains(t, greeting.Event.Message.Text, "Alex")

	require.NoError(t, ws.WriteJSON(inboundMessage{Type: "send", Text: "salut"}))
	var texts []string
	for len(texts) < 2 {
		msg := readEvent()
		if msg.Type == "event" && msg.Event.Type == events.MessageAppended {
			texts = append(texts, msg.Event.Message.Text)
		}
	}
	require.Equal(t, []string{"salut", "bisous"}, texts)
}

package events

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// newRedisBus connects to REDIS_ADDR or skips.
func newRedisBus(t *testing.T) *Bus {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	bus, err := NewRedisBus(t.Context(), addr, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

// attach waits until a fan-out subscriber is reading: it starts at the stream
// tail, so anything published before its first read is not seen.
func attach(t *testing.T, bus *Bus, ch <-chan Event, conversationID string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		require.NoError(t, bus.Publish(Busy(conversationID, true)))
		select {
		case ev, ok := <-ch:
			require.True(t, ok)
			if ev.Type == BusyChanged {
				return
			}
		case <-tick.C:
		case <-deadline:
			t.Fatal("redis subscriber never attached")
		}
	}
}

// nextAppended skips busy events left over from attach.
func nextAppended(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	for {
		ev := receive(t, ch)
		if ev.Type == MessageAppended {
			return ev
		}
	}
}

func TestRedisBusDeliversInPublishOrderToEverySubscriber(t *testing.T) {
	req := require.New(t)
	bus := newRedisBus(t)
	conv := "conv-" + uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx, conv)
	req.NoError(err)
	second, err := bus.Subscribe(ctx, conv)
	req.NoError(err)
	attach(t, bus, first, conv)
	attach(t, bus, second, conv)

	texts := []string{"one", "two", "three"}
	for i, text := range texts {
		req.NoError(bus.Publish(Appended(chat.Message{ConversationID: conv, Seq: i, Text: text, Author: chat.AuthorUser})))
	}

	for _, ch := range []<-chan Event{first, second} {
		for i, text := range texts {
			ev := nextAppended(t, ch)
			req.Equal(i, ev.Message.Seq)
			req.Equal(text, ev.Message.Text)
		}
	}
}

func TestRedisBusIsolatesConversations(t *testing.T) {
	req := require.New(t)
	bus := newRedisBus(t)
	convA, convB := "conv-"+uuid.NewString(), "conv-"+uuid.NewString()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, convA)
	req.NoError(err)
	attach(t, bus, ch, convA)

	req.NoError(bus.Publish(Appended(chat.Message{ConversationID: convB, Text: "elsewhere", Author: chat.AuthorUser})))
	req.NoError(bus.Publish(Appended(chat.Message{ConversationID: convA, Text: "here", Author: chat.AuthorUser})))

	ev := nextAppended(t, ch)
	req.Equal(convA, ev.ConversationID)
	req.Equal("here", ev.Message.Text)
}

func TestRedisSubscribeClosesWithContext(t *testing.T) {
	bus := newRedisBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "conv-"+uuid.NewString())
	require.NoError(t, err)
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after cancel")
		}
	}
}

package events

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestMemoryBusDeliversInPublishOrder(t *testing.T) {
	req := require.New(t)
	bus := NewMemoryBus(NewLogger(zerolog.Nop()))
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "conv-1")
	req.NoError(err)

	for i, text := range []string{"one", "two", "three"} {
		req.NoError(bus.Publish(Appended(chat.Message{ConversationID: "conv-1", Seq: i, Text: text, Author: chat.AuthorUser})))
	}

	for i, text := range []string{"one", "two", "three"} {
		ev := receive(t, ch)
		req.Equal(MessageAppended, ev.Type)
		req.NotNil(ev.Message)
		req.Equal(i, ev.Message.Seq)
		req.Equal(text, ev.Message.Text)
	}
}

func TestMemoryBusIsolatesConversations(t *testing.T) {
	req := require.New(t)
	bus := NewMemoryBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "conv-a")
	req.NoError(err)

	req.NoError(bus.Publish(Busy("conv-b", true)))
	req.NoError(bus.Publish(Raised("conv-a", chat.Notification{Title: "hello"})))

	ev := receive(t, ch)
	req.Equal(NotificationRaised, ev.Type)
	req.Equal("conv-a", ev.ConversationID)
	req.Equal("hello", ev.Notification.Title)
}

func TestSubscribeClosesWithContext(t *testing.T) {
	bus := NewMemoryBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, "conv-1")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestStalledSubscriberDoesNotBlockOtherConversations(t *testing.T) {
	req := require.New(t)
	bus := NewMemoryBus(nil)
	defer bus.Close()
	bus.SetStallTimeout(100 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stalled, err := bus.Subscribe(ctx, "stalled")
	req.NoError(err)

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < 200; i++ {
			_ = bus.Publish(Busy("stalled", i%2 == 0))
		}
	}()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing to a stalled conversation never completed")
	}

	type result struct {
		ch  <-chan Event
		err error
	}
	done := make(chan result, 1)
	go func() {
		other, err := bus.Subscribe(ctx, "other")
		if err == nil {
			err = bus.Publish(Busy("other2", true))
		}
		if err == nil {
			err = bus.Publish(Busy("other", true))
		}
		done <- result{ch: other, err: err}
	}()

	select {
	case res := <-done:
		req.NoError(res.err)
		req.Equal("other", receive(t, res.ch).ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated conversation blocked behind a stalled subscriber")
	}

	// The stalled reader gets what was buffered, then a closed channel.
	drained := 0
	for range stalled {
		drained++
	}
	req.Equal(subscriberBuffer, drained)
}

package events

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(ev Event) error
}

// Bus publishes and subscribes conversation events.
type Bus struct {
	pub     message.Publisher
	sub     message.Subscriber
	closers []func() error
	buffer  int
	stall   time.Duration
}

const (
	subscriberBuffer = 64
	// DefaultStallTimeout is how long a subscriber may keep its buffer full
	// before it is dropped. Publishers wait at most this long on it.
	DefaultStallTimeout = time.Second
)

// SetStallTimeout overrides DefaultStallTimeout for subscriptions made afterwards.
func (b *Bus) SetStallTimeout(d time.Duration) {
	if d > 0 {
		b.stall = d
	}
}

// NewMemoryBus returns an in-process bus. Publish blocks until every current
// subscriber has acknowledged the event, which keeps delivery in publish order.
func NewMemoryBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            subscriberBuffer,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{pub: ch, sub: ch, closers: []func() error{ch.Close}, buffer: subscriberBuffer, stall: DefaultStallTimeout}
}

// NewRedisBus returns a bus backed by Redis Streams. Subscribers run in
// fan-out mode so every viewer receives every event.
func NewRedisBus(ctx context.Context, addr string, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", addr)
	}

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client:     client,
		Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis stream publisher")
	}

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:       client,
		Unmarshaller: redisstream.DefaultMarshallerUnmarshaller{},
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redis stream subscriber")
	}

	return &Bus{
		pub:     pub,
		sub:     sub,
		closers: []func() error{sub.Close, pub.Close, client.Close},
		buffer:  subscriberBuffer,
		stall:   DefaultStallTimeout,
	}, nil
}

// Publish sends ev on its conversation topic.
func (b *Bus) Publish(ev Event) error {
	payload, err := ev.encode()
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(ev.Type))
	return errors.Wrapf(b.pub.Publish(Topic(ev.ConversationID), msg), "publish %s", ev.Type)
}

// Subscribe streams the events of one conversation until ctx is done. A
// subscriber that leaves its channel full for longer than the stall timeout is
// dropped: its channel is closed so the reader can reconnect and replay.
func (b *Bus) Subscribe(ctx context.Context, conversationID string) (<-chan Event, error) {
	subCtx, cancel := context.WithCancel(ctx)
	raw, err := b.sub.Subscribe(subCtx, Topic(conversationID))
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "subscribe %s", conversationID)
	}

	out := make(chan Event, b.buffer)
	go func() {
		defer close(out)
		defer cancel()
		for {
			var msg *message.Message
			select {
			case <-subCtx.Done():
				return
			case m, ok := <-raw:
				if !ok {
					return
				}
				msg = m
			}

			ev, err := decode(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("conversation", conversationID).Msg("[events] dropping undecodable event")
				msg.Ack()
				continue
			}
			if !b.deliver(subCtx, out, ev) {
				msg.Ack()
				if subCtx.Err() == nil {
					log.Warn().Str("conversation", conversationID).Dur("stall", b.stall).Msg("[events] dropping stalled subscriber")
				}
				return
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// deliver hands ev to out, giving up when ctx ends or out stays full past the
// stall timeout.
func (b *Bus) deliver(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	default:
	}

	timer := time.NewTimer(b.stall)
	defer timer.Stop()
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

// Close releases the underlying pub/sub resources.
func (b *Bus) Close() error {
	var firstErr error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

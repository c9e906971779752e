package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/mira-chat/internal/events"
	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// Message is an alias kept local so callers of this package rarely need the model import.
type Message = chat.Message

// Conversation is an ordered, append-only list of messages.
type Conversation struct {
	id        string
	createdAt time.Time
	publisher events.Publisher

	// appendMu serializes append+publish so subscribers see insertion order;
	// mu guards messages for readers and is never held while publishing.
	appendMu sync.Mutex
	mu       sync.RWMutex
	messages []Message
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string { return c.id }

// CreatedAt returns when the conversation was opened.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// Append stores msg at the end of the conversation and emits an appended event.
// ID, Seq, ConversationID and a zero Timestamp are filled in here.
func (c *Conversation) Append(kind string, msg Message) (Message, error) {
	if !msg.Author.Valid() {
		return Message{}, ErrInvalidMessage
	}

	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	msg.ConversationID = c.id
	msg.ID = NewMessageID(kind)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	msg.Seq = len(c.messages)
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.publisher != nil {
		if err := c.publisher.Publish(events.Appended(msg)); err != nil {
			log.Warn().Err(err).Str("conversation", c.id).Str("message", msg.ID).Msg("[conversation] publish appended event failed")
		}
	}
	return msg, nil
}

// Messages returns a copy of the conversation in insertion order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	copied := make([]Message, len(c.messages))
	copy(copied, c.messages)
	return copied
}

// Len reports the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// NewMessageID returns "<kind>-<uuid>", e.g. "user-…" or "ai-…".
func NewMessageID(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "msg"
	}
	return kind + "-" + uuid.NewString()
}

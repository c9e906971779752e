// Package conversation holds the in-memory, append-only message sequences.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/events"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrInvalidMessage       = errors.New("invalid message")
)

// Registry owns every open conversation of the process.
type Registry struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	publisher     events.Publisher
}

// NewRegistry returns an empty registry publishing appends on publisher.
// A nil publisher disables event emission.
func NewRegistry(publisher events.Publisher) *Registry {
	return &Registry{
		conversations: make(map[string]*Conversation),
		publisher:     publisher,
	}
}

// Open creates a new, empty conversation.
func (r *Registry) Open(_ context.Context) *Conversation {
	c := &Conversation{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		messages:  make([]Message, 0, 16),
		publisher: r.publisher,
	}

	r.mu.Lock()
	r.conversations[c.id] = c
	r.mu.Unlock()
	return c
}

// Get retrieves a conversation by identifier.
func (r *Registry) Get(_ context.Context, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return c, nil
}

// Close forgets a conversation. Its messages are gone with it.
func (r *Registry) Close(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(r.conversations, id)
	return nil
}

// Len reports how many conversations are open.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conversations)
}

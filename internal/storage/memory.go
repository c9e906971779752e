package storage

import (
	"context"
	"sync"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// MemoryRepository keeps the slots in a map. Nothing survives the process.
type MemoryRepository struct {
	mu              sync.RWMutex
	slots           map[string]string
	defaultEndpoint string
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository(defaultEndpoint string) *MemoryRepository {
	return &MemoryRepository{
		slots:           make(map[string]string, 2),
		defaultEndpoint: defaultEndpoint,
	}
}

func (r *MemoryRepository) Load(_ context.Context) (chat.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fromSlots(r.slots[KeyUsername], r.slots[KeyWebhookURL], r.defaultEndpoint), nil
}

func (r *MemoryRepository) SaveName(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		delete(r.slots, KeyUsername)
		return nil
	}
	r.slots[KeyUsername] = name
	return nil
}

func (r *MemoryRepository) SaveEndpoint(_ context.Context, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[KeyWebhookURL] = endpoint
	return nil
}

func (r *MemoryRepository) Close() error { return nil }

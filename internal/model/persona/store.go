package persona

import "github.com/samber/lo"

// Store exposes persona retrieval for the chat service and HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns the predefined persona list.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	return lo.Find(s.items, func(item Persona) bool {
		return item.ID == id
	})
}

// Default returns the widget persona, falling back to the first seeded one.
func Default(s Store) Persona {
	if p, ok := s.FindByID(DefaultID); ok {
		return p
	}
	return Seed()[0]
}

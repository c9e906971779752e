// Package storage persists the device-wide chat session: the display name and
// the webhook endpoint, each in its own durable key-value slot.
package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// Slot keys. They match the widget's localStorage keys so a browser export can
// be replayed into the store.
const (
	KeyUsername   = "chat-username"
	KeyWebhookURL = "chat-webhook-url"
)

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverPebble = "pebble"
	DriverBadger = "badger"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Repository loads the chat session and writes each slot on its own, so
// capturing a name never pins the endpoint that happened to be active.
type Repository interface {
	Load(ctx context.Context) (chat.Session, error)
	// SaveName writes the username slot; an empty name clears it.
	SaveName(ctx context.Context, name string) error
	// SaveEndpoint writes the webhook slot. Only explicit saves call it.
	SaveEndpoint(ctx context.Context, endpoint string) error
	Close() error
}

// Options configures Open.
type Options struct {
	Driver          string
	Dir             string
	DefaultEndpoint string
}

// Open returns the repository backend named by opts.Driver.
func Open(opts Options) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryRepository(opts.DefaultEndpoint), nil
	case DriverPebble:
		return OpenPebble(opts.Dir, opts.DefaultEndpoint)
	case DriverBadger:
		return OpenBadger(opts.Dir, opts.DefaultEndpoint)
	default:
		return nil, errors.Wrapf(ErrUnknownDriver, "driver %q", opts.Driver)
	}
}

// fromSlots builds a session from raw slot values.
func fromSlots(name, endpoint, defaultEndpoint string) chat.Session {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = defaultEndpoint
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = chat.DefaultWebhookEndpoint
	}
	return chat.Session{DisplayName: name, WebhookEndpoint: endpoint}
}

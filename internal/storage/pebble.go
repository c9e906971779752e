package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// PebbleRepository stores each slot under its key in a Pebble database.
type PebbleRepository struct {
	db              *pebble.DB
	defaultEndpoint string
}

// OpenPebble opens (or creates) the Pebble database living at dir.
func OpenPebble(dir, defaultEndpoint string) (*PebbleRepository, error) {
	if dir == "" {
		return nil, errors.New("pebble: data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "pebble: create data dir")
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "pebble: open")
	}
	return &PebbleRepository{db: db, defaultEndpoint: defaultEndpoint}, nil
}

func (r *PebbleRepository) Load(_ context.Context) (chat.Session, error) {
	name, err := r.get(KeyUsername)
	if err != nil {
		return chat.Session{}, err
	}
	endpoint, err := r.get(KeyWebhookURL)
	if err != nil {
		return chat.Session{}, err
	}
	return fromSlots(name, endpoint, r.defaultEndpoint), nil
}

func (r *PebbleRepository) get(key string) (string, error) {
	data, closer, err := r.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrapf(err, "pebble: get %s", key)
	}
	defer closer.Close()
	return string(data), nil
}

func (r *PebbleRepository) SaveName(_ context.Context, name string) error {
	if name == "" {
		return errors.Wrap(r.db.Delete([]byte(KeyUsername), pebble.Sync), "pebble: clear username")
	}
	return errors.Wrap(r.db.Set([]byte(KeyUsername), []byte(name), pebble.Sync), "pebble: set username")
}

func (r *PebbleRepository) SaveEndpoint(_ context.Context, endpoint string) error {
	return errors.Wrap(r.db.Set([]byte(KeyWebhookURL), []byte(endpoint), pebble.Sync), "pebble: set webhook url")
}

func (r *PebbleRepository) Close() error {
	return r.db.Close()
}

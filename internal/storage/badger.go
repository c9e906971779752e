package storage

import (
	"context"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/zhouzirui/mira-chat/internal/model/chat"
)

// BadgerRepository stores the slots in a BadgerDB, one transaction per write.
type BadgerRepository struct {
	db              *badger.DB
	defaultEndpoint string
}

// OpenBadger opens (or creates) the Badger database at dir.
func OpenBadger(dir, defaultEndpoint string) (*BadgerRepository, error) {
	if dir == "" {
		return nil, errors.New("badger: data dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "badger: create data dir")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, errors.Wrap(err, "badger: open")
	}
	return &BadgerRepository{db: db, defaultEndpoint: defaultEndpoint}, nil
}

func (r *BadgerRepository) Load(_ context.Context) (chat.Session, error) {
	var name, endpoint string
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		if name, err = readSlot(txn, KeyUsername); err != nil {
			return err
		}
		endpoint, err = readSlot(txn, KeyWebhookURL)
		return err
	})
	if err != nil {
		return chat.Session{}, errors.Wrap(err, "badger: load session")
	}
	return fromSlots(name, endpoint, r.defaultEndpoint), nil
}

func readSlot(txn *badger.Txn, key string) (string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (r *BadgerRepository) SaveName(_ context.Context, name string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if name == "" {
			return txn.Delete([]byte(KeyUsername))
		}
		return txn.Set([]byte(KeyUsername), []byte(name))
	})
	return errors.Wrap(err, "badger: save username")
}

func (r *BadgerRepository) SaveEndpoint(_ context.Context, endpoint string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(KeyWebhookURL), []byte(endpoint))
	})
	return errors.Wrap(err, "badger: save webhook url")
}

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

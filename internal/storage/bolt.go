package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketReceiverSets = []byte("receiver_sets")

type boltStore struct {
	db  *bolt.DB
	log logx.Logger
	key []byte
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for bolt driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			// Another process holds the file lock.
			return nil, errors.Join(ErrUnavailable, err)
		}
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketReceiverSets)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, log: log, key: []byte(cfg.key())}, nil
}

func (s *boltStore) LoadReceivers(ctx context.Context) ([]string, error) {
	_ = ctx
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiverSets)
		if b == nil {
			return nil
		}
		v := b.Get(s.key)
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, &out)
	})
	if err != nil {
		return nil, err
	}
	return normalizeIDs(out), nil
}

func (s *boltStore) SaveReceivers(ctx context.Context, ids []string) error {
	_ = ctx
	payload, err := json.Marshal(normalizeIDs(ids))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketReceiverSets)
		if err != nil {
			return err
		}
		return b.Put(s.key, payload)
	})
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

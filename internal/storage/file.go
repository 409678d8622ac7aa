package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	logx "pushrelay/pkg/logx"
	"strings"
	"sync"
)

// fileStore is a dependency-free persistence backend.
//
// The whole state lives in one JSON snapshot:
//
//	{"version":1,"sets":{"receivers.static":["a","b"]}}
//
// Writes go to <path>.tmp first and are renamed into place so a crash never
// leaves a half-written snapshot behind.
type fileStore struct {
	log logx.Logger
	key string

	mu   sync.Mutex
	path string
}

const fileSnapshotVersion = 1

type fileSnapshot struct {
	Version int                 `json:"version"`
	Sets    map[string][]string `json:"sets"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	st := &fileStore{log: log, key: cfg.key(), path: path}

	// Surface a corrupt snapshot at open time rather than on first dispatch.
	if _, err := st.readLocked(); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *fileStore) LoadReceivers(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.readLocked()
	if err != nil {
		return nil, err
	}
	return normalizeIDs(snap.Sets[s.key]), nil
}

func (s *fileStore) SaveReceivers(ctx context.Context, ids []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.readLocked()
	if err != nil {
		// Replace is a full overwrite of our key; keep other keys only when readable.
		s.log.Warn("file store snapshot unreadable; rewriting", logx.String("path", s.path), logx.Err(err))
		snap = fileSnapshot{}
	}
	if snap.Sets == nil {
		snap.Sets = map[string][]string{}
	}
	snap.Version = fileSnapshotVersion
	snap.Sets[s.key] = normalizeIDs(ids)
	return writeJSONAtomic(s.path, snap)
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) readLocked() (fileSnapshot, error) {
	var snap fileSnapshot
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, nil
		}
		return snap, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

func writeJSONAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

package storage

import (
	"errors"
	logx "pushrelay/pkg/logx"
	"strings"
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory", "mem":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "bolt", "bbolt":
		return openBolt(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

package app

import (
	"context"
	"fmt"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"pushrelay/internal/config"
	"pushrelay/internal/storage"
)

// mapStorageConfig translates the storage section. enabled=false means the
// registry keeps its identity set in memory.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	dial, err := config.ParseDurationOrDefault("storage.dial_timeout", sc.DialTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, false, err
	}
	out := storage.Config{Driver: driver, Key: strings.TrimSpace(sc.Key)}

	switch driver {
	case "memory", "mem":
		return out, true, nil
	case "file", "sqlite", "sqlite3", "bolt", "bbolt":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=%s", driver)
		}
		out.Path = path
		if driver != "sqlite" && driver != "sqlite3" {
			return out, true, nil
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		out.BusyTimeout = busy
		return out, true, nil
	case "redis":
		out.Addr = strings.TrimSpace(sc.Addr)
		if out.Addr == "" {
			out.Addr = "127.0.0.1:6379"
		}
		out.Password = sc.Password
		out.DB = sc.DB
		out.DialTimeout = dial
		return out, true, nil
	case "postgres", "postgresql", "pg":
		out.DSN = strings.TrimSpace(sc.DSN)
		if out.DSN == "" {
			return storage.Config{}, false, fmt.Errorf("storage.dsn is required when storage.driver=%s", driver)
		}
		out.DialTimeout = dial
		return out, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// openStore opens the configured backend. In deferred mode it returns an
// unattached storage.Deferred plus an attach func the app retries in the
// background; otherwise attach is nil.
func openStore(cfg *config.Config, log logx.Logger) (storage.Store, func(context.Context) error, error) {
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if !enabled {
		log.Info("storage disabled; receiver set kept in memory")
		return storage.NewMemory(), nil, nil
	}
	if !cfg.Storage.Deferred {
		st, err := storage.Open(sc, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
		return st, nil, nil
	}

	d := storage.NewDeferred()
	attach := func(ctx context.Context) error {
		if d.Attached() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		st, err := storage.Open(sc, log)
		if err != nil {
			return err
		}
		d.Attach(st)
		log.Info("storage attached", logx.String("driver", sc.Driver))
		return nil
	}
	log.Info("storage deferred", logx.String("driver", sc.Driver))
	return d, attach, nil
}

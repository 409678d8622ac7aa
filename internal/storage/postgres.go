package storage

import (
	"context"
	"errors"
	"fmt"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS receiver_set (
	set_key    TEXT NOT NULL,
	identity   TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (set_key, identity)
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	key  string
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.dsn: %w", err)
	}
	if cfg.DialTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.DialTimeout
	}
	pcfg.MaxConns = 2

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, classifyPostgresErr(err)
	}
	return &postgresStore{pool: pool, log: log, key: cfg.key()}, nil
}

func (s *postgresStore) LoadReceivers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctxOrBackground(ctx),
		`SELECT identity FROM receiver_set WHERE set_key = $1 ORDER BY identity`, s.key)
	if err != nil {
		return nil, classifyPostgresErr(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classifyPostgresErr(err)
	}
	return normalizeIDs(ids), nil
}

func (s *postgresStore) SaveReceivers(ctx context.Context, ids []string) error {
	ctx = ctxOrBackground(ctx)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM receiver_set WHERE set_key = $1`, s.key); err != nil {
			return err
		}
		for _, id := range normalizeIDs(ids) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO receiver_set(set_key, identity) VALUES($1, $2)`, s.key, id); err != nil {
				return err
			}
		}
		return nil
	})
	return classifyPostgresErr(err)
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// classifyPostgresErr marks connection-level failures as transient. Server-side
// errors (constraint, syntax) come back as *pgconn.PgError and pass through.
func classifyPostgresErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("postgres: %w: %w", ErrUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("postgres: %w: %w", ErrUnavailable, err)
	}
	return err
}

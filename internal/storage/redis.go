package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	logx "pushrelay/pkg/logx"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps the identities in a Redis SET at the configured key.
type redisStore struct {
	client *redis.Client
	log    logx.Logger
	key    string
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dial,
	})
	// Not pinging here: an unreachable server is a transient condition the
	// registry retries on its next call.
	return &redisStore{client: client, log: log, key: cfg.key()}, nil
}

func (s *redisStore) LoadReceivers(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctxOrBackground(ctx), s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, classifyRedisErr(err)
	}
	return normalizeIDs(ids), nil
}

func (s *redisStore) SaveReceivers(ctx context.Context, ids []string) error {
	ctx = ctxOrBackground(ctx)
	ids = normalizeIDs(ids)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.key)
		if len(ids) > 0 {
			members := make([]any, 0, len(ids))
			for _, id := range ids {
				members = append(members, id)
			}
			p.SAdd(ctx, s.key, members...)
		}
		return nil
	})
	return classifyRedisErr(err)
}

func (s *redisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func classifyRedisErr(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis: %w: %w", ErrUnavailable, err)
	}
	return err
}

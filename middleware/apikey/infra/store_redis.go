package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"apikey-gateway/middleware/apikey/domain"

	"github.com/redis/go-redis/v9"
)

const defaultRedisSnapshotKey = "apikeys:snapshot"

// RedisStore guarda o snapshot inteiro como um único documento JSON numa key
// Redis. SET é atômico, então leitores nunca veem um documento parcial.
type RedisStore struct {
	rdb *redis.Client
	key string
}

type RedisStoreOption func(*RedisStore)

func WithSnapshotKey(key string) RedisStoreOption {
	return func(s *RedisStore) {
		if k := strings.TrimSpace(key); k != "" {
			s.key = k
		}
	}
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, key: defaultRedisSnapshotKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Load(ctx context.Context) (domain.Snapshot, error) {
	b, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		empty, err := encodeSnapshot(domain.Snapshot{})
		if err != nil {
			return nil, err
		}
		created, err := s.rdb.SetNX(ctx, s.key, empty, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("redis setnx %s: %w", s.key, err)
		}
		if created {
			return domain.Snapshot{}, nil
		}
		// outra instância inicializou entre o GET e o SETNX
		b, err = s.rdb.Get(ctx, s.key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", s.key, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decodeSnapshot(b)
}

func (s *RedisStore) Save(ctx context.Context, snap domain.Snapshot) error {
	b, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisEntryPrefix = "tcp:entry:"
	redisIndexKey    = "tcp:commands"
)

// RedisStore backs the registry with Redis: one CBOR blob per entry plus a
// sorted-set index of command names for ordered iteration. Writes go
// through MULTI/EXEC so the blob and the index never diverge.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, key string, entry *Entry) error {
	blob, err := exportMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("RedisStore.Put: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisEntryPrefix+key, blob, 0)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{Score: 0, Member: entry.Command})
		return nil
	})
	if err != nil {
		return fmt.Errorf("RedisStore.Put: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	blob, err := s.client.Get(ctx, redisEntryPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("RedisStore.Get: %w", err)
	}
	var entry Entry
	if err := importMode.Unmarshal(blob, &entry); err != nil {
		return nil, fmt.Errorf("RedisStore.Get: %w", err)
	}
	return &entry, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*Entry, error) {
	// With all scores zero, ZRANGE orders members lexically by name —
	// exactly the sorted iteration the export contract needs.
	commands, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("RedisStore.List: %w", err)
	}
	entries := make([]*Entry, 0, len(commands))
	for _, cmd := range commands {
		entry, err := s.Get(ctx, Key(cmd))
		if err != nil {
			return nil, fmt.Errorf("RedisStore.List: %w", err)
		}
		if entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("RedisStore.Count: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/observability"
)

// DefaultRedisKey is the list holding serialized entries, newest at the head.
const DefaultRedisKey = "swasthya-homeo-history"

// RedisStore keeps history in a capped Redis list
type RedisStore struct {
	client   *redis.Client
	key      string
	capacity int
}

// NewRedisStore connects to url and verifies the connection
func NewRedisStore(ctx context.Context, url string, capacity int) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, key: DefaultRedisKey, capacity: capacityOrDefault(capacity)}, nil
}

func (r *RedisStore) Record(ctx context.Context, mode domain.Mode, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) (string, error) {
	entry := newEntry(mode, transcript, result, locale)
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("failed to encode history entry: %w", err)
	}

	pipe := r.client.TxPipeline()
	length := pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RecordHistoryWrite("redis", false)
		return "", fmt.Errorf("failed to record history entry: %w", err)
	}

	observability.RecordHistoryWrite("redis", true)
	observability.RecordHistoryEvictions("redis", length.Val()-int64(r.capacity))
	return entry.ID, nil
}

func (r *RedisStore) List(ctx context.Context) ([]domain.HistoryEntry, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, int64(r.capacity-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]domain.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry domain.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

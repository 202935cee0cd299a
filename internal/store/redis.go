package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lox/cyclewatch/internal/models"
)

const defaultRedisPrefix = "cyclewatch:economy_status"

// RedisStore keeps one JSON document per day plus a sorted index of dates
// scored by Unix day, so the latest record is a single ZREVRANGE away.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ StatusStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) docKey(date string) string {
	return r.prefix + ":" + date
}

func (r *RedisStore) indexKey() string {
	return r.prefix + ":index"
}

func (r *RedisStore) PutStatus(ctx context.Context, rec models.StatusRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}

	key := rec.Key()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.docKey(key), body, 0)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{Score: float64(rec.Date.Unix() / 86400), Member: key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("put status %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) LatestStatus(ctx context.Context) (*models.StatusRecord, error) {
	records, err := r.ListStatuses(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

func (r *RedisStore) ListStatuses(ctx context.Context, limit int) ([]models.StatusRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	dates, err := r.client.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list status index: %w", err)
	}

	records := make([]models.StatusRecord, 0, len(dates))
	for _, date := range dates {
		body, err := r.client.Get(ctx, r.docKey(date)).Bytes()
		if errors.Is(err, redis.Nil) {
			// index entry without a document; skip it
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get status %s: %w", date, err)
		}
		var rec models.StatusRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal status %s: %w", date, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

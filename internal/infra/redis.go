// Package infra provides the concrete Redis adapter.
//
// It wraps go-redis v9 and implements both store.KV and consumer.Log. No
// other package imports the driver — cmd/api and cmd/consumer construct
// adapters here and inject them through the narrow interfaces.
package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zacharyclement/feature-restrictions/internal/consumer"
	"github.com/zacharyclement/feature-restrictions/internal/store"
)

// RedisAdapter is one connection to one logical Redis database. The service
// uses three: user aggregates, the event stream, and tripwire state.
type RedisAdapter struct {
	rdb *redis.Client
}

// NewRedisAdapter connects and pings; callers decide what a failure means
// (the ingress degrades, the consumer aborts startup).
func NewRedisAdapter(addr, password string, db int) (*RedisAdapter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s db %d): %w", addr, db, err)
	}

	slog.Info("Redis connected", "addr", addr, "db", db)
	return &RedisAdapter{rdb: rdb}, nil
}

// Close shuts down the underlying client.
func (a *RedisAdapter) Close() error {
	return a.rdb.Close()
}

// =============================================================================
// store.KV implementation
// =============================================================================

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, error) {
	val, err := a.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", store.ErrNotFound
	}
	return val, err
}

func (a *RedisAdapter) Set(ctx context.Context, key, value string) error {
	return a.rdb.Set(ctx, key, value, 0).Err()
}

func (a *RedisAdapter) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return a.rdb.Del(ctx, keys...).Err()
}

func (a *RedisAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	return a.rdb.Keys(ctx, pattern).Result()
}

func (a *RedisAdapter) HSet(ctx context.Context, key, field, value string) error {
	return a.rdb.HSet(ctx, key, field, value).Err()
}

func (a *RedisAdapter) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := a.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", store.ErrNotFound
	}
	return val, err
}

func (a *RedisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return a.rdb.HGetAll(ctx, key).Result()
}

func (a *RedisAdapter) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return a.rdb.HDel(ctx, key, fields...).Err()
}

func (a *RedisAdapter) FlushDB(ctx context.Context) error {
	return a.rdb.FlushDB(ctx).Err()
}

// =============================================================================
// consumer.Log implementation (Redis Streams)
// =============================================================================

func (a *RedisAdapter) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	return a.rdb.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
}

func (a *RedisAdapter) CreateGroup(ctx context.Context, stream, group string) error {
	err := a.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && strings.Contains(err.Error(), "BUSYGROUP") {
		slog.Info("Consumer group already exists", "stream", stream, "group", group)
		return nil
	}
	return err
}

func (a *RedisAdapter) ReadGroup(ctx context.Context, stream, group, consumerName string, count int64, block time.Duration) ([]consumer.Entry, error) {
	res, err := a.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumerName,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		// Block elapsed with nothing new.
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []consumer.Entry
	for _, s := range res {
		for _, msg := range s.Messages {
			fields := make(map[string]string, len(msg.Values))
			for k, v := range msg.Values {
				if sv, ok := v.(string); ok {
					fields[k] = sv
				} else {
					fields[k] = fmt.Sprint(v)
				}
			}
			entries = append(entries, consumer.Entry{ID: msg.ID, Fields: fields})
		}
	}
	return entries, nil
}

func (a *RedisAdapter) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return a.rdb.XAck(ctx, stream, group, ids...).Err()
}

package actionlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultKey = "clinicdesk:actions"

// RedisLog keeps the action trail in a Redis list, trimmed to the
// retention bound on every append.
type RedisLog struct {
	client *redis.Client
	key    string
	max    int64
	log    zerolog.Logger
}

// NewRedisLog connects to redisURL and verifies the connection.
func NewRedisLog(ctx context.Context, redisURL string, log zerolog.Logger) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisLog{client: client, key: defaultKey, max: DefaultMax, log: log}, nil
}

// NewRedisLogWithClient wraps an existing client, used by tests.
func NewRedisLogWithClient(client *redis.Client, log zerolog.Logger) *RedisLog {
	return &RedisLog{client: client, key: defaultKey, max: DefaultMax, log: log}
}

// Record appends the entry and trims the list to the retention bound.
// Logging must never fail the action being logged, so errors are
// reported through the logger only.
func (r *RedisLog) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		r.log.Warn().Err(err).Msg("encode action entry")
		return
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, -r.max, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.Warn().Err(err).Str("action", e.Action).Msg("record action failed")
	}
}

// Recent returns up to n entries, newest first.
func (r *RedisLog) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 || n > DefaultMax {
		n = DefaultMax
	}
	raw, err := r.client.LRange(ctx, r.key, -int64(n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read action log: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e Entry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			r.log.Warn().Err(err).Msg("skip malformed action entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close releases the Redis connection.
func (r *RedisLog) Close() error {
	return r.client.Close()
}

// Package repo holds Redis-backed persistence. The pipeline itself is
// stateless per turn; the only thing stored is a write-mostly audit trail of
// handled turns, bucketed per day.
package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errx "github.com/smart-librarian/server/internal/core/error"
	"github.com/smart-librarian/server/internal/librarian/model"
	logx "github.com/smart-librarian/server/pkg/logger"
)

// listCommands is the slice of the Redis API the turn log needs; *redis.Client
// satisfies it, tests use an in-memory fake.
type listCommands interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

type RedisTurnLog struct {
	rdb listCommands
	ttl time.Duration
}

func NewRedisTurnLog(rdb listCommands, ttl time.Duration) *RedisTurnLog {
	return &RedisTurnLog{rdb: rdb, ttl: ttl}
}

func (r *RedisTurnLog) dayKey(t time.Time) string {
	return fmt.Sprintf("audit:turns:%s", t.UTC().Format("2006-01-02"))
}

// Record appends one turn to today's bucket and refreshes the bucket TTL.
func (r *RedisTurnLog) Record(ctx context.Context, rec model.TurnRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		logx.Error().Err(err).Str("turn_id", rec.TurnID).Msg("failed to marshal turn record")
		return fmt.Errorf("marshal turn record: %w", err)
	}
	key := r.dayKey(rec.At)

	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push turn record to redis")
		return errx.WrapRedis(err)
	}
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on audit key")
		}
	}
	return nil
}

// Recent returns up to n newest records for a day, newest last.
func (r *RedisTurnLog) Recent(ctx context.Context, day time.Time, n int) ([]model.TurnRecord, error) {
	key := r.dayKey(day)

	rows, err := r.rdb.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load turn records from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.TurnRecord, 0, len(rows))
	for i, s := range rows {
		var rec model.TurnRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			logx.Error().Err(err).Int("index", i).Msg("failed to unmarshal turn record")
			return nil, fmt.Errorf("unmarshal turn record at index %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count reports how many turns were recorded on a day.
func (r *RedisTurnLog) Count(ctx context.Context, day time.Time) (int, error) {
	key := r.dayKey(day)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to count turn records")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

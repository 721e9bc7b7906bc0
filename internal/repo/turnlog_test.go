package repo

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smart-librarian/server/internal/librarian/model"
)

// fakeRedis keeps lists in memory and answers with the go-redis result helpers.
type fakeRedis struct {
	lists map[string][]string
	ttls  map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{lists: make(map[string][]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		switch b := v.(type) {
		case []byte:
			f.lists[key] = append(f.lists[key], string(b))
		case string:
			f.lists[key] = append(f.lists[key], b)
		}
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	rows := f.lists[key]
	n := int64(len(rows))
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if start >= n || start > stop {
		return redis.NewStringSliceResult(nil, nil)
	}
	if stop >= n {
		stop = n - 1
	}
	return redis.NewStringSliceResult(rows[start:stop+1], nil)
}

func (f *fakeRedis) LLen(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func turnRecord(id, query string, at time.Time) model.TurnRecord {
	return model.TurnRecord{
		TurnID:  id,
		Query:   query,
		Outcome: model.OutcomeAnswered,
		Reply:   "reply for " + id,
		At:      at,
	}
}

func TestRecordAndRecent(t *testing.T) {
	rdb := newFakeRedis()
	log := NewRedisTurnLog(rdb, 24*time.Hour)
	day := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, log.Record(context.Background(), turnRecord(id, "books about war", day)))
	}

	got, err := log.Recent(context.Background(), day, 2)
	require.NoError(t, err)
	require.Len(t, got, 2, "only the newest n records come back")
	assert.Equal(t, "t2", got[0].TurnID)
	assert.Equal(t, "t3", got[1].TurnID)
	assert.Equal(t, "books about war", got[1].Query)
	assert.Equal(t, model.OutcomeAnswered, got[1].Outcome)

	assert.Equal(t, 24*time.Hour, rdb.ttls["audit:turns:2026-08-28"], "day bucket carries the TTL")
}

func TestRecordBucketsByUTCDay(t *testing.T) {
	rdb := newFakeRedis()
	log := NewRedisTurnLog(rdb, time.Hour)

	first := time.Date(2026, 8, 27, 23, 59, 0, 0, time.UTC)
	second := time.Date(2026, 8, 28, 0, 1, 0, 0, time.UTC)
	require.NoError(t, log.Record(context.Background(), turnRecord("t1", "q", first)))
	require.NoError(t, log.Record(context.Background(), turnRecord("t2", "q", second)))

	n, err := log.Count(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = log.Count(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecentEmptyDay(t *testing.T) {
	log := NewRedisTurnLog(newFakeRedis(), time.Hour)

	got, err := log.Recent(context.Background(), time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := log.Count(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, n)
}

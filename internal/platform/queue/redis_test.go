package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type redisFixture struct {
	mr     *miniredis.Miniredis
	client *redis.Client
	q      *RedisQueue
	now    time.Time
}

func setupRedisQueue(t *testing.T, policy RetryPolicy) *redisFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &redisFixture{mr: mr, client: client, now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	f.q = NewRedisQueue(client, WithConsumerName("test-worker"), WithRedisPolicy(policy))
	f.q.now = func() time.Time { return f.now }
	require.NoError(t, f.q.EnsureGroup(context.Background()))
	return f
}

func (f *redisFixture) len(t *testing.T, stream string) int64 {
	t.Helper()
	n, err := f.client.XLen(context.Background(), stream).Result()
	require.NoError(t, err)
	return n
}

func (f *redisFixture) delayed(t *testing.T) int64 {
	t.Helper()
	n, err := f.client.ZCard(context.Background(), f.q.delayed).Result()
	require.NoError(t, err)
	return n
}

func TestRedisQueue_AckedTasksAreRemoved(t *testing.T) {
	f := setupRedisQueue(t, DefaultRetryPolicy())
	ctx := context.Background()
	mux := NewMux()
	var got []string
	mux.Handle("greet", func(_ context.Context, p json.RawMessage) error {
		var g greeting
		require.NoError(t, json.Unmarshal(p, &g))
		got = append(got, g.To)
		return nil
	})

	require.NoError(t, f.q.Enqueue(ctx, "greet", greeting{To: "a@example.com"}))
	f.q.readNew(ctx, mux)

	assert.Equal(t, []string{"a@example.com"}, got)
	assert.Equal(t, int64(0), f.len(t, f.q.stream), "handled entries are deleted from the stream")
	pending, err := f.client.XPending(ctx, f.q.stream, f.q.group).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestRedisQueue_RetryIsPromotedWhenDue(t *testing.T) {
	f := setupRedisQueue(t, RetryPolicy{MaxRetries: 3, Delay: time.Minute})
	ctx := context.Background()
	mux := NewMux()
	var attempts []int
	mux.Handle("flaky", func(context.Context, json.RawMessage) error {
		attempts = append(attempts, len(attempts))
		if len(attempts) == 1 {
			return errors.New("smtp down")
		}
		return nil
	})

	require.NoError(t, f.q.Enqueue(ctx, "flaky", greeting{}))
	f.q.readNew(ctx, mux)
	assert.Equal(t, int64(1), f.delayed(t))
	assert.Equal(t, int64(0), f.len(t, f.q.stream))

	require.NoError(t, f.q.promoteDue(ctx))
	assert.Equal(t, int64(1), f.delayed(t), "retry is not due yet")

	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.q.promoteDue(ctx))
	assert.Equal(t, int64(0), f.delayed(t))
	assert.Equal(t, int64(1), f.len(t, f.q.stream))

	f.q.readNew(ctx, mux)
	assert.Len(t, attempts, 2)
	assert.Equal(t, int64(0), f.len(t, f.q.stream))
}

func TestRedisQueue_PromoteKeepsRetryWhenStreamWriteFails(t *testing.T) {
	f := setupRedisQueue(t, DefaultRetryPolicy())
	ctx := context.Background()

	task, err := NewTask("greet", greeting{To: "b@example.com"}, f.now)
	require.NoError(t, err)
	task.Attempt = 1
	member, err := json.Marshal(task)
	require.NoError(t, err)
	require.NoError(t, f.client.ZAdd(ctx, f.q.delayed, redis.Z{Score: float64(f.now.UnixMilli()), Member: string(member)}).Err())

	// A key of the wrong type makes XADD fail inside the script.
	require.NoError(t, f.client.Del(ctx, f.q.stream).Err())
	require.NoError(t, f.mr.Set(f.q.stream, "not a stream"))

	assert.Error(t, f.q.promoteDue(ctx))
	assert.Equal(t, int64(1), f.delayed(t), "the retry must survive a failed stream write")

	f.mr.Del(f.q.stream)
	require.NoError(t, f.q.promoteDue(ctx))
	assert.Equal(t, int64(0), f.delayed(t))
	msgs, err := f.client.XRange(ctx, f.q.stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	promoted, err := taskFromMessage(msgs[0])
	require.NoError(t, err)
	assert.Equal(t, task.ID, promoted.ID)
	assert.Equal(t, 1, promoted.Attempt)
}

func TestRedisQueue_DeadLetters(t *testing.T) {
	var outcomes []string
	f := setupRedisQueue(t, RetryPolicy{MaxRetries: 0, Delay: time.Minute})
	f.q.observer = func(_, outcome string) { outcomes = append(outcomes, outcome) }
	ctx := context.Background()
	mux := NewMux()
	mux.Handle("broken", func(context.Context, json.RawMessage) error { return errors.New("rejected") })

	require.NoError(t, f.q.Enqueue(ctx, "broken", greeting{}))
	f.q.readNew(ctx, mux)

	assert.Equal(t, int64(1), f.len(t, f.q.dlq))
	assert.Equal(t, int64(0), f.len(t, f.q.stream))
	assert.Equal(t, []string{OutcomeDeadLettered}, outcomes)

	msgs, err := f.client.XRange(ctx, f.q.dlq, "-", "+").Result()
	require.NoError(t, err)
	assert.Equal(t, "rejected", msgs[0].Values["error"])
}

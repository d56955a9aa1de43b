package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultStream = "medipt:tasks"
	DefaultGroup  = "medipt-workers"

	blockTimeout   = 5 * time.Second
	pendingTimeout = 2 * time.Minute
	readCount      = 10

	// DefaultDeadLetterMaxLen caps the dead-letter stream (approximate trim).
	DefaultDeadLetterMaxLen = 10000
)

// promoteScript moves one due retry from the delayed set onto the stream.
// XADD runs before ZREM so a failed XADD leaves the retry in place, and the
// script as a whole keeps concurrent workers from promoting an entry twice.
//
// KEYS[1] delayed set, KEYS[2] stream. ARGV[1] member, ARGV[2..] field/value pairs.
var promoteScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
local fields = {}
for i = 2, #ARGV do
	fields[#fields + 1] = ARGV[i]
end
redis.call('XADD', KEYS[2], '*', unpack(fields))
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

// RedisQueue stores tasks in a Redis stream consumed by a consumer group.
// Retries wait in a sorted set scored by due time and are moved back onto the
// stream when due; tasks that exhaust their retries go to a dead-letter stream.
type RedisQueue struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	delayed  string
	dlq      string
	dlqMax   int64
	policy   RetryPolicy
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
}

type RedisOption func(*RedisQueue)

func WithStream(stream string) RedisOption {
	return func(q *RedisQueue) {
		q.stream = stream
		q.delayed = stream + ":delayed"
		q.dlq = stream + ":dlq"
	}
}
func WithConsumerName(name string) RedisOption { return func(q *RedisQueue) { q.consumer = name } }
func WithDeadLetterMaxLen(n int64) RedisOption  { return func(q *RedisQueue) { q.dlqMax = n } }
func WithRedisPolicy(p RetryPolicy) RedisOption { return func(q *RedisQueue) { q.policy = p } }
func WithRedisObserver(o Observer) RedisOption  { return func(q *RedisQueue) { q.observer = o } }
func WithRedisLogger(l zerolog.Logger) RedisOption {
	return func(q *RedisQueue) { q.logger = l }
}

func NewRedisQueue(client *redis.Client, opts ...RedisOption) *RedisQueue {
	host, _ := os.Hostname()
	if host == "" {
		host = "worker"
	}
	q := &RedisQueue{
		client:   client,
		group:    DefaultGroup,
		consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
		dlqMax:   DefaultDeadLetterMaxLen,
		policy:   DefaultRetryPolicy(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	WithStream(DefaultStream)(q)
	for _, o := range opts {
		o(q)
	}
	return q
}

// NewRedisClient parses url, connects and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload any) error {
	t, err := NewTask(name, payload, q.now())
	if err != nil {
		return err
	}
	return q.add(ctx, q.stream, t, nil)
}

func taskValues(t Task, extra map[string]any) map[string]any {
	values := map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"payload":     string(t.Payload),
		"attempt":     strconv.Itoa(t.Attempt),
		"enqueued_at": t.EnqueuedAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range extra {
		values[k] = v
	}
	return values
}

func (q *RedisQueue) add(ctx context.Context, stream string, t Task, extra map[string]any) error {
	args := &redis.XAddArgs{Stream: stream, Values: taskValues(t, extra)}
	if stream == q.dlq && q.dlqMax > 0 {
		args.MaxLen = q.dlqMax
		args.Approx = true
	}
	if err := q.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Name, err)
	}
	return nil
}

func taskFromMessage(msg redis.XMessage) (Task, error) {
	str := func(k string) string {
		v, _ := msg.Values[k].(string)
		return v
	}
	t := Task{ID: str("id"), Name: str("name"), Payload: json.RawMessage(str("payload"))}
	if t.Name == "" {
		return t, fmt.Errorf("message %s has no task name", msg.ID)
	}
	if a := str("attempt"); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil {
			return t, fmt.Errorf("message %s: bad attempt %q", msg.ID, a)
		}
		t.Attempt = n
	}
	if ts := str("enqueued_at"); ts != "" {
		t.EnqueuedAt, _ = time.Parse(time.RFC3339Nano, ts)
	}
	return t, nil
}

// EnsureGroup creates the consumer group if it does not exist.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Run consumes the stream until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context, mux *Mux) error {
	if err := q.EnsureGroup(ctx); err != nil {
		return err
	}
	q.logger.Info().Str("stream", q.stream).Str("group", q.group).Str("consumer", q.consumer).Msg("task worker started")
	for {
		if ctx.Err() != nil {
			q.logger.Info().Msg("task worker stopping")
			return nil
		}
		if err := q.promoteDue(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn().Err(err).Msg("promote delayed tasks")
		}
		q.claimStale(ctx, mux)
		q.readNew(ctx, mux)
	}
}

// promoteDue moves retries whose delay has elapsed back onto the stream.
func (q *RedisQueue) promoteDue(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: readCount,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		var t Task
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			q.logger.Error().Err(err).Msg("discarding undecodable delayed task")
			q.client.ZRem(ctx, q.delayed, member)
			continue
		}
		args := []any{member}
		for k, v := range taskValues(t, nil) {
			args = append(args, k, v)
		}
		if err := promoteScript.Run(ctx, q.client, []string{q.delayed, q.stream}, args...).Err(); err != nil {
			return fmt.Errorf("promote %s: %w", t.Name, err)
		}
	}
	return nil
}

func (q *RedisQueue) readNew(ctx context.Context, mux *Mux) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    readCount,
		Block:    blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		q.logger.Error().Err(err).Msg("read task stream")
		time.Sleep(time.Second)
		return
	}
	for _, s := range streams {
		for _, msg := range s.Messages {
			q.process(ctx, mux, msg)
		}
	}
}

// claimStale takes over messages delivered to a consumer that died before
// acknowledging them.
func (q *RedisQueue) claimStale(ctx context.Context, mux *Mux) {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Idle:   pendingTimeout,
		Start:  "-",
		End:    "+",
		Count:  readCount,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn().Err(err).Msg("list pending tasks")
		}
		return
	}
	for _, p := range pending {
		msgs, err := q.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   q.stream,
			Group:    q.group,
			Consumer: q.consumer,
			MinIdle:  pendingTimeout,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			q.logger.Warn().Err(err).Str("message_id", p.ID).Msg("claim stale task")
			continue
		}
		for _, msg := range msgs {
			q.logger.Info().Str("message_id", msg.ID).Str("previous_consumer", p.Consumer).Msg("reclaimed stale task")
			q.process(ctx, mux, msg)
		}
	}
}

func (q *RedisQueue) process(ctx context.Context, mux *Mux, msg redis.XMessage) {
	t, err := taskFromMessage(msg)
	if err != nil {
		q.logger.Error().Err(err).Msg("dead-lettering malformed task")
		q.deadLetter(ctx, msg.ID, t, err)
		return
	}
	log := q.logger.With().Str("task", t.Name).Str("task_id", t.ID).Int("attempt", t.Attempt).Logger()

	runErr := mux.Dispatch(ctx, t)
	switch {
	case runErr == nil:
		q.observe(t.Name, OutcomeSucceeded)
		log.Debug().Msg("task succeeded")
	case q.policy.shouldRetry(t, runErr):
		next := t
		next.Attempt++
		member, err := json.Marshal(next)
		if err != nil {
			log.Error().Err(err).Msg("encode retry")
			return
		}
		due := q.now().Add(q.policy.Delay).UnixMilli()
		if err := q.client.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due), Member: string(member)}).Err(); err != nil {
			// Left unacknowledged; claimStale redelivers it.
			log.Error().Err(err).Msg("schedule retry")
			return
		}
		q.observe(t.Name, OutcomeRetried)
		log.Warn().Err(runErr).Dur("retry_in", q.policy.Delay).Msg("task failed, retry scheduled")
	default:
		log.Error().Err(runErr).Msg("task failed permanently")
		q.deadLetter(ctx, msg.ID, t, runErr)
		return
	}
	q.ack(ctx, msg.ID)
}

func (q *RedisQueue) deadLetter(ctx context.Context, msgID string, t Task, cause error) {
	extra := map[string]any{
		"error":       cause.Error(),
		"original_id": msgID,
		"failed_at":   q.now().UTC().Format(time.RFC3339),
	}
	if err := q.add(ctx, q.dlq, t, extra); err != nil {
		q.logger.Error().Err(err).Str("message_id", msgID).Msg("could not dead-letter task")
		return
	}
	q.observe(t.Name, OutcomeDeadLettered)
	q.ack(ctx, msgID)
}

// ack acknowledges and deletes a handled message so the stream only holds
// unfinished work.
func (q *RedisQueue) ack(ctx context.Context, msgID string) {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, q.stream, q.group, msgID)
		pipe.XDel(ctx, q.stream, msgID)
		return nil
	})
	if err != nil {
		q.logger.Error().Err(err).Str("message_id", msgID).Msg("ack task")
	}
}

func (q *RedisQueue) observe(name, outcome string) {
	if q.observer != nil {
		q.observer(name, outcome)
	}
}

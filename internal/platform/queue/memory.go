package queue

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxMemoryDeadLetters bounds the dead letters kept in memory; the oldest
// are dropped first.
const maxMemoryDeadLetters = 1000

// MemoryQueue is an in-process queue for development and tests. Run consumes
// tasks in the background; Drain processes everything queued synchronously,
// ignoring retry delays.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Task
	dead     []Task
	history  []Task
	record   bool
	notify   chan struct{}
	policy   RetryPolicy
	logger   zerolog.Logger
	observer Observer
	now      func() time.Time
	// FailWith, when set, makes Enqueue fail. Tests use it to simulate an
	// unavailable broker.
	FailWith error
}

type MemoryOption func(*MemoryQueue)

func WithMemoryPolicy(p RetryPolicy) MemoryOption { return func(q *MemoryQueue) { q.policy = p } }
func WithMemoryObserver(o Observer) MemoryOption  { return func(q *MemoryQueue) { q.observer = o } }
func WithMemoryLogger(l zerolog.Logger) MemoryOption {
	return func(q *MemoryQueue) { q.logger = l }
}

// WithHistory keeps every enqueued task for Enqueued. Tests only; the
// history is never trimmed.
func WithHistory() MemoryOption { return func(q *MemoryQueue) { q.record = true } }

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		notify: make(chan struct{}, 1),
		policy: DefaultRetryPolicy(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, name string, payload any) error {
	if q.FailWith != nil {
		return q.FailWith
	}
	t, err := NewTask(name, payload, q.now())
	if err != nil {
		return err
	}
	q.push(t)
	return nil
}

func (q *MemoryQueue) push(t Task) {
	q.mu.Lock()
	q.pending = append(q.pending, t)
	if q.record {
		q.history = append(q.history, t)
	}
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Task{}, false
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	return t, true
}

// Enqueued returns every task enqueued, including retries, in order. It is
// empty unless the queue was built WithHistory.
func (q *MemoryQueue) Enqueued() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.history...)
}

// DeadLetters returns tasks that exhausted their retries.
func (q *MemoryQueue) DeadLetters() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.dead...)
}

// Drain processes queued tasks until none remain, retrying immediately.
func (q *MemoryQueue) Drain(ctx context.Context, mux *Mux) {
	for {
		t, ok := q.pop()
		if !ok {
			return
		}
		if retry, ok := q.process(ctx, mux, t); ok {
			q.push(retry)
		}
	}
}

// Run consumes tasks until ctx is cancelled, honouring the retry delay.
func (q *MemoryQueue) Run(ctx context.Context, mux *Mux) error {
	for {
		for {
			t, ok := q.pop()
			if !ok {
				break
			}
			if retry, ok := q.process(ctx, mux, t); ok {
				time.AfterFunc(q.policy.Delay, func() { q.push(retry) })
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) process(ctx context.Context, mux *Mux, t Task) (Task, bool) {
	err := mux.Dispatch(ctx, t)
	if err == nil {
		q.observe(t.Name, OutcomeSucceeded)
		return Task{}, false
	}
	if q.policy.shouldRetry(t, err) {
		q.logger.Warn().Err(err).Str("task", t.Name).Str("task_id", t.ID).Int("attempt", t.Attempt).Msg("task failed, scheduling retry")
		q.observe(t.Name, OutcomeRetried)
		t.Attempt++
		return t, true
	}
	q.logger.Error().Err(err).Str("task", t.Name).Str("task_id", t.ID).Int("attempt", t.Attempt).Msg("task failed permanently")
	q.observe(t.Name, OutcomeDeadLettered)
	q.mu.Lock()
	q.dead = append(q.dead, t)
	if n := len(q.dead) - maxMemoryDeadLetters; n > 0 {
		q.dead = append([]Task(nil), q.dead[n:]...)
	}
	q.mu.Unlock()
	return Task{}, false
}

func (q *MemoryQueue) observe(name, outcome string) {
	if q.observer != nil {
		q.observer(name, outcome)
	}
}

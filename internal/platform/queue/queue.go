// Package queue is the at-least-once task queue used for all outbound email.
// Producers call Enqueue after their transaction commits; a worker process
// drains the queue through a Mux of named handlers. Failed tasks are retried
// after a fixed delay up to a bounded count and then dead-lettered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownTask = errors.New("unknown task")

// Task is a unit of background work.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask marshals payload into a fresh task.
func NewTask(name string, payload any, now time.Time) (Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Task{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return Task{ID: uuid.NewString(), Name: name, Payload: raw, EnqueuedAt: now}, nil
}

// Enqueuer accepts tasks for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any) error
}

// Consumer drains a queue through a Mux until its context is cancelled.
type Consumer interface {
	Run(ctx context.Context, mux *Mux) error
}

type Handler func(ctx context.Context, payload json.RawMessage) error

// Mux routes tasks to handlers by name.
type Mux struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[string]Handler)}
}

func (m *Mux) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

func (m *Mux) Dispatch(ctx context.Context, t Task) error {
	m.mu.RLock()
	h, ok := m.handlers[t.Name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
	}
	return h(ctx, t.Payload)
}

// Outcome labels reported to an Observer.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
)

// Observer is notified of every task outcome, typically to update metrics.
type Observer func(taskName, outcome string)

// RetryPolicy bounds redelivery of failing tasks.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 60 * time.Second}
}

// shouldRetry reports whether a task that just failed on attempt t.Attempt gets
// another try. Unknown task names are never retried.
func (p RetryPolicy) shouldRetry(t Task, err error) bool {
	if errors.Is(err, ErrUnknownTask) {
		return false
	}
	return t.Attempt < p.MaxRetries
}

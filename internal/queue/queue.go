package queue

//go:generate go run go.uber.org/mock/mockgen -source=./queue.go -destination=./mocks/queue_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"
)

// Handler processes a single job. Job.Attempt starts at 1; a returned error
// triggers the retry policy.
type Handler func(ctx context.Context, job Job) error

type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	Priority   int             `json:"priority"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type Options struct {
	// Priority > 0 jumps the FIFO line.
	Priority int

	// Delay postpones the first execution.
	Delay time.Duration

	// CronPattern registers a recurring producer instead of a one-shot job.
	// Standard five-field cron in UTC.
	CronPattern string
}

// RateLimit caps how many jobs a worker pool may start per window.
type RateLimit struct {
	Max    int
	Window time.Duration
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

// Queue is a durable, named job queue. Jobs of a name are consumed only by
// the worker registered for that name; there is no cross-name ordering, and
// within a name FIFO is best-effort with retries reinjected at the tail.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload any, opts Options) (string, error)
	RegisterWorker(name string, handler Handler, concurrency int, limit RateLimit) error
	Stats(ctx context.Context) (Stats, error)
	Shutdown(ctx context.Context) error
}

// Unmarshal decodes a job payload into the given struct.
func Unmarshal[T any](job Job) (T, error) {
	var payload T
	err := json.Unmarshal(job.Payload, &payload)

	return payload, err
}

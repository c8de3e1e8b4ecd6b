package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Dis3z/reserve-api/infras/otel"
	"github.com/Dis3z/reserve-api/shared/constant"
)

const (
	defaultMaxAttempts   = 3
	defaultBackoffBase   = 2 * time.Second
	defaultKeepCompleted = 100
	defaultKeepFailed    = 500
	defaultPollInterval  = time.Second
	defaultConcurrency   = 5

	promoteBatchSize = 128

	namesKey = "queue:names"

	otelJobNameAttribute = "queue.job_name"
)

// Config tunes the redis-backed queue. Zero values fall back to defaults.
type Config struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	KeepCompleted int64
	KeepFailed    int64
	PollInterval  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}

	if c.KeepCompleted <= 0 {
		c.KeepCompleted = defaultKeepCompleted
	}

	if c.KeepFailed <= 0 {
		c.KeepFailed = defaultKeepFailed
	}

	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}

	return c
}

type redisQueue struct {
	client *redis.Client
	cfg    Config
	otel   otel.Otel
	cron   *cron.Cron

	mu       sync.Mutex
	workers  map[string]bool
	shutdown bool

	active atomic.Int64

	workerCtx    context.Context
	workerCancel context.CancelFunc
	wg           sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, cfg Config, ot otel.Otel) Queue {
	ctx, cancel := context.WithCancel(context.Background())

	return &redisQueue{
		client:       client,
		cfg:          cfg.withDefaults(),
		otel:         ot,
		cron:         cron.New(cron.WithLocation(time.UTC)),
		workers:      make(map[string]bool),
		workerCtx:    ctx,
		workerCancel: cancel,
	}
}

func waitingKey(name string) string   { return "queue:" + name + ":waiting" }
func delayedKey(name string) string   { return "queue:" + name + ":delayed" }
func completedKey(name string) string { return "queue:" + name + ":completed" }
func failedKey(name string) string    { return "queue:" + name + ":failed" }
func countsKey(name string) string    { return "queue:" + name + ":counts" }

// Enqueue implements Queue.
func (q *redisQueue) Enqueue(ctx context.Context, name string, payload any, opts Options) (id string, err error) {
	ctx, scope := q.otel.NewScope(ctx, constant.OtelQueueScopeName, constant.OtelQueueScopeName+".Enqueue")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute(otelJobNameAttribute, name)

	q.mu.Lock()
	closed := q.shutdown
	q.mu.Unlock()

	if closed {
		return constant.Empty, errors.New("queue is shut down")
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return constant.Empty, fmt.Errorf("failed to marshal job payload (%s): %w", name, err)
	}

	if opts.CronPattern != constant.Empty {
		return q.registerCronProducer(name, raw, opts)
	}

	job := Job{
		ID:         uuid.NewString(),
		Name:       name,
		Payload:    raw,
		Attempt:    1,
		Priority:   opts.Priority,
		EnqueuedAt: time.Now().UTC(),
	}

	if err = q.push(ctx, job, opts.Delay); err != nil {
		return constant.Empty, err
	}

	return job.ID, nil
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return v, nil
	case []byte:
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}

// registerCronProducer wires a recurring producer that enqueues a fresh job
// on every schedule tick.
func (q *redisQueue) registerCronProducer(name string, payload json.RawMessage, opts Options) (string, error) {
	entryID, err := q.cron.AddFunc(opts.CronPattern, func() {
		job := Job{
			ID:         uuid.NewString(),
			Name:       name,
			Payload:    payload,
			Attempt:    1,
			Priority:   opts.Priority,
			EnqueuedAt: time.Now().UTC(),
		}

		if err := q.push(context.Background(), job, 0); err != nil {
			log.Error().Err(err).Str("job", name).Msg("failed to enqueue recurring job")
		}
	})
	if err != nil {
		return constant.Empty, fmt.Errorf("failed to register cron producer (%s): %w", name, err)
	}

	q.cron.Start()

	log.Info().Str("job", name).Str("pattern", opts.CronPattern).Msg("registered recurring job")

	return fmt.Sprintf("cron:%s:%d", name, entryID), nil
}

func (q *redisQueue) push(ctx context.Context, job Job, delay time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job (%s): %w", job.Name, err)
	}

	pipe := q.client.TxPipeline()
	pipe.SAdd(ctx, namesKey, job.Name)

	switch {
	case delay > 0:
		pipe.ZAdd(ctx, delayedKey(job.Name), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixMilli()),
			Member: string(data),
		})
	case job.Priority > 0:
		// The consumer pops from the tail, so the tail is the front of the
		// line.
		pipe.RPush(ctx, waitingKey(job.Name), data)
	default:
		pipe.LPush(ctx, waitingKey(job.Name), data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job (%s): %w", job.Name, err)
	}

	return nil
}

// RegisterWorker implements Queue.
func (q *redisQueue) RegisterWorker(name string, handler Handler, concurrency int, limit RateLimit) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shutdown {
		return errors.New("queue is shut down")
	}

	if q.workers[name] {
		return fmt.Errorf("worker already registered for job name %q", name)
	}

	q.workers[name] = true

	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if limit.Max > 0 && limit.Window > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(limit.Max)/limit.Window.Seconds()), limit.Max)
	}

	q.wg.Add(1)
	go q.promoter(name)

	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.workerLoop(name, handler, limiter)
	}

	log.Info().
		Str("job", name).
		Int("concurrency", concurrency).
		Msg("registered queue worker")

	return nil
}

// promoter moves due delayed jobs of one name into the waiting list.
func (q *redisQueue) promoter(name string) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.workerCtx.Done():
			return
		case <-ticker.C:
			q.promoteDue(name)
		}
	}
}

func (q *redisQueue) promoteDue(name string) {
	ctx := q.workerCtx
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	due, err := q.client.ZRangeByScore(ctx, delayedKey(name), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatchSize,
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}

	for _, member := range due {
		removed, err := q.client.ZRem(ctx, delayedKey(name), member).Result()
		if err != nil || removed == 0 {
			continue
		}

		if err := q.client.LPush(ctx, waitingKey(name), member).Err(); err != nil {
			log.Error().Err(err).Str("job", name).Msg("failed to promote delayed job")
		}
	}
}

func (q *redisQueue) workerLoop(name string, handler Handler, limiter *rate.Limiter) {
	defer q.wg.Done()

	for {
		if err := limiter.Wait(q.workerCtx); err != nil {
			return
		}

		res, err := q.client.BRPop(q.workerCtx, q.cfg.PollInterval, waitingKey(name)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			if q.workerCtx.Err() != nil {
				return
			}

			log.Error().Err(err).Str("job", name).Msg("failed to pop job")
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			log.Error().Err(err).Str("job", name).Msg("failed to decode job, discarding")
			continue
		}

		q.runJob(job, handler)
	}
}

func (q *redisQueue) runJob(job Job, handler Handler) {
	q.active.Add(1)
	defer q.active.Add(-1)

	// Jobs run to completion even during shutdown; the drain in Shutdown
	// waits for them.
	ctx := context.Background()

	err := handler(ctx, job)
	if err == nil {
		q.record(ctx, completedKey(job.Name), countsKey(job.Name), "completed", job, q.cfg.KeepCompleted)

		return
	}

	log.Error().
		Err(err).
		Str("job", job.Name).
		Str("id", job.ID).
		Int("attempt", job.Attempt).
		Msg("job handler failed")

	if job.Attempt < q.cfg.MaxAttempts {
		q.requeueWithBackoff(ctx, job)

		return
	}

	q.record(ctx, failedKey(job.Name), countsKey(job.Name), "failed", job, q.cfg.KeepFailed)
}

// requeueWithBackoff schedules the next attempt, doubling the delay each
// time: base, 2*base, 4*base, ...
func (q *redisQueue) requeueWithBackoff(ctx context.Context, job Job) {
	backoff := q.cfg.BackoffBase << (job.Attempt - 1)
	job.Attempt++

	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("failed to marshal job for retry")

		return
	}

	err = q.client.ZAdd(ctx, delayedKey(job.Name), redis.Z{
		Score:  float64(time.Now().Add(backoff).UnixMilli()),
		Member: string(data),
	}).Err()
	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("failed to schedule retry")
	}
}

func (q *redisQueue) record(ctx context.Context, listKey, hashKey, field string, job Job, keep int64) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("failed to marshal job for inspection")

		return
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, listKey, data)
	pipe.LTrim(ctx, listKey, 0, keep-1)
	pipe.HIncrBy(ctx, hashKey, field, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("job", job.Name).Msg("failed to record job outcome")
	}
}

// Stats implements Queue.
func (q *redisQueue) Stats(ctx context.Context) (stats Stats, err error) {
	ctx, scope := q.otel.NewScope(ctx, constant.OtelQueueScopeName, constant.OtelQueueScopeName+".Stats")
	defer scope.End()
	defer scope.TraceIfError(err)

	names, err := q.client.SMembers(ctx, namesKey).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to list job names: %w", err)
	}

	for _, name := range names {
		waiting, err := q.client.LLen(ctx, waitingKey(name)).Result()
		if err != nil {
			return stats, fmt.Errorf("failed to read waiting count (%s): %w", name, err)
		}

		delayed, err := q.client.ZCard(ctx, delayedKey(name)).Result()
		if err != nil {
			return stats, fmt.Errorf("failed to read delayed count (%s): %w", name, err)
		}

		counts, err := q.client.HGetAll(ctx, countsKey(name)).Result()
		if err != nil {
			return stats, fmt.Errorf("failed to read outcome counts (%s): %w", name, err)
		}

		stats.Waiting += waiting
		stats.Delayed += delayed
		stats.Completed += parseCount(counts["completed"])
		stats.Failed += parseCount(counts["failed"])
	}

	stats.Active = q.active.Load()

	return stats, nil
}

func parseCount(value string) int64 {
	var count int64
	_, _ = fmt.Sscanf(value, "%d", &count)

	return count
}

// Shutdown implements Queue. It stops intake, then waits for active jobs to
// drain or ctx to expire.
func (q *redisQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.shutdown {
		q.mu.Unlock()

		return nil
	}
	q.shutdown = true
	q.mu.Unlock()

	cronCtx := q.cron.Stop()
	q.workerCancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown timed out: %w", ctx.Err())
	}

	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown timed out waiting for cron jobs: %w", ctx.Err())
	}

	log.Info().Msg("queue shut down")

	return nil
}

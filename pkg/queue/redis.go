package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinCast/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RedisQueue is a reliable-enough job queue on a Redis list, with a sorted set
// of delayed retries and a dead-letter list.
type RedisQueue struct {
	logger    *logger.Logger
	config    QueueConfig
	client    *redis.Client
	mode      QueueMode
	keyPrefix string
	tracer    trace.Tracer
	prop      propagation.TextMapPropagator
	poll      time.Duration

	mu        sync.RWMutex
	jobs      map[string]Job
	isRunning bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithRetryPoll sets how often due retries are moved back to the queue.
func WithRetryPoll(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.poll = d
		}
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.MaxRetryDelay < cfg.RetryDelay {
		cfg.MaxRetryDelay = 16 * cfg.RetryDelay
	}
	if lgr == nil {
		lgr = logger.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger:    lgr,
		config:    cfg,
		client:    client,
		mode:      mode,
		keyPrefix: "fincast:queue",
		tracer:    otel.Tracer("fincast/queue"),
		prop:      propagation.TraceContext{},
		poll:      time.Second,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob registers a job for its message type. Call before Start.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()),
		logger.String("mode", r.mode.String()))
}

// Start pings Redis and, unless producer-only, launches the workers and the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.isRunning = true

	if r.mode == ModeProducerOnly {
		r.logger.Info("redis queue started", logger.String("mode", r.mode.String()))
		return nil
	}
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryMover()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("mode", r.mode.String()))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers to return.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.mu.Unlock()

	r.logger.Info("stopping redis queue...")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a message to the queue. A consuming queue rejects types it has no job for.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.isRunning
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Trace:     map[string]string{},
	}
	r.prop.Inject(ctx, propagation.MapCarrier(msg.Trace))

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Pending returns the number of messages waiting to be picked up.
func (r *RedisQueue) Pending(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.queueKey()).Result()
}

// Scheduled returns the number of messages waiting for a retry.
func (r *RedisQueue) Scheduled(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.retryKey()).Result()
}

// DeadLetters returns the number of messages that exhausted their retries.
func (r *RedisQueue) DeadLetters(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.deadLetterKey()).Result()
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))
	for r.ctx.Err() == nil {
		r.next()
	}
	r.logger.Debug("queue worker stopped", logger.Int("worker_id", id))
}

func (r *RedisQueue) next() {
	res, err := r.client.BRPop(r.ctx, time.Second, r.queueKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
			return
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	if len(res) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.logger.Error("drop malformed message", logger.Error(err))
		return
	}
	r.process(msg)
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	ctx := r.prop.Extract(r.ctx, propagation.MapCarrier(msg.Trace))
	ctx, span := r.tracer.Start(ctx, "queue."+msg.Type, trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.message.id", msg.ID),
			attribute.Int("queue.attempt", msg.Attempts+1),
		))
	defer span.End()

	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	jobDuration.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		jobsTotal.WithLabelValues(job.Name(), "ok").Inc()
	case r.ctx.Err() != nil:
		// shutting down: put the message back untouched so another worker picks it up
		jobsTotal.WithLabelValues(job.Name(), "cancelled").Inc()
		r.requeue(msg)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.fail(msg, job, err)
	}
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		jobsTotal.WithLabelValues(job.Name(), "dead").Inc()
		r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
		r.deadLetter(msg)
		return
	}

	jobsTotal.WithLabelValues(job.Name(), "retry").Inc()
	msg.Attempts++
	at := time.Now().Add(r.backoff(msg.Attempts))
	if err := r.schedule(msg, at); err != nil {
		r.logger.Error("schedule retry", logger.String("id", msg.ID), logger.Error(err))
		return
	}
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

// backoff doubles RetryDelay per attempt up to MaxRetryDelay.
func (r *RedisQueue) backoff(attempt int) time.Duration {
	d := r.config.RetryDelay
	for i := 1; i < attempt && d < r.config.MaxRetryDelay; i++ {
		d *= 2
	}
	if d > r.config.MaxRetryDelay {
		d = r.config.MaxRetryDelay
	}
	return d
}

func (r *RedisQueue) schedule(msg Message, at time.Time) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err()
}

func (r *RedisQueue) requeue(msg Message) {
	data, err := json.Marshal(msg)
	if err == nil {
		err = r.client.RPush(context.Background(), r.queueKey(), data).Err()
	}
	if err != nil {
		r.logger.Error("requeue message", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	data, err := json.Marshal(msg)
	if err == nil {
		err = r.client.LPush(context.Background(), r.deadLetterKey(), data).Err()
	}
	if err != nil {
		r.logger.Error("dead-letter message", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) retryMover() {
	defer r.wg.Done()
	t := time.NewTicker(r.poll)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			r.moveDue()
		}
	}
}

// moveDue pushes due retries back onto the queue. ZREM decides ownership so
// concurrent movers never duplicate a message.
func (r *RedisQueue) moveDue() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(time.Now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		n, err := r.client.ZRem(r.ctx, r.retryKey(), member).Result()
		if err != nil || n == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), member).Err(); err != nil {
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.keyPrefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.keyPrefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

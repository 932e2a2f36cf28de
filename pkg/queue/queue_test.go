package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"FinCast/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type trainPayload struct {
	Timeframe string   `json:"timeframe"`
	Symbols   []string `json:"symbols"`
}

type recordingJob struct {
	calls atomic.Int32
	got   atomic.Value
	err   error
}

func (j *recordingJob) Name() string { return "recording" }
func (j *recordingJob) Type() string { return "train" }
func (j *recordingJob) Handle(_ context.Context, payload interface{}) error {
	j.calls.Add(1)
	p, err := ParsePayload[trainPayload](payload)
	if err != nil {
		return err
	}
	j.got.Store(*p)
	return j.err
}

type flakyJob struct {
	calls atomic.Int32
}

func (j *flakyJob) Name() string { return "flaky" }
func (j *flakyJob) Type() string { return "train" }
func (j *flakyJob) Handle(context.Context, interface{}) error {
	if j.calls.Add(1) == 1 {
		return errors.New("transient")
	}
	return nil
}

func newQueue(t *testing.T, job Job, retries int) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	return newQueueWith(t, job, &QueueConfig{Workers: 1, RetryLimit: retries, RetryDelay: time.Hour}, ModeProducerConsumer)
}

func newQueueWith(t *testing.T, job Job, cfg *QueueConfig, mode QueueMode, opts ...RedisQueueOption) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(logger.Nop(), cfg, client, mode, opts...)
	if job != nil {
		q.RegisterJob(job)
	}
	require.NoError(t, q.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q, mr
}

func TestRedisQueue_DeliversToJob(t *testing.T) {
	job := &recordingJob{}
	q, _ := newQueue(t, job, 0)

	require.NoError(t, q.Enqueue(context.Background(), "train", trainPayload{Timeframe: "1h", Symbols: []string{"BTCUSDT"}}))

	require.Eventually(t, func() bool { return job.calls.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, trainPayload{Timeframe: "1h", Symbols: []string{"BTCUSDT"}}, job.got.Load())
}

func TestRedisQueue_UnknownTypeRejected(t *testing.T) {
	q, _ := newQueue(t, &recordingJob{}, 0)
	assert.Error(t, q.Enqueue(context.Background(), "nope", nil))
}

func TestRedisQueue_FailedJobGoesToDeadLetter(t *testing.T) {
	job := &recordingJob{err: errors.New("training failed")}
	q, _ := newQueue(t, job, 0)

	require.NoError(t, q.Enqueue(context.Background(), "train", trainPayload{Timeframe: "4h"}))

	require.Eventually(t, func() bool {
		n, err := q.DeadLetters(context.Background())
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRedisQueue_RetriesWithBackoff(t *testing.T) {
	job := &flakyJob{}
	q, _ := newQueueWith(t, job, &QueueConfig{Workers: 1, RetryLimit: 2, RetryDelay: 10 * time.Millisecond}, ModeProducerConsumer, WithRetryPoll(10*time.Millisecond))

	require.NoError(t, q.Enqueue(context.Background(), "train", trainPayload{Timeframe: "1d"}))

	require.Eventually(t, func() bool { return job.calls.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	n, err := q.DeadLetters(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisQueue_Backoff(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{RetryDelay: time.Second, MaxRetryDelay: 5 * time.Second}, nil, ModeProducerOnly)
	assert.Equal(t, time.Second, q.backoff(1))
	assert.Equal(t, 2*time.Second, q.backoff(2))
	assert.Equal(t, 4*time.Second, q.backoff(3))
	assert.Equal(t, 5*time.Second, q.backoff(4))
	assert.Equal(t, 5*time.Second, q.backoff(10))
}

func TestRedisQueue_ProducerOnlyCarriesTraceContext(t *testing.T) {
	q, mr := newQueueWith(t, nil, nil, ModeProducerOnly, WithKeyPrefix("test:queue"))

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     sid,
		TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, q.Enqueue(ctx, "anything", trainPayload{Timeframe: "1w"}))

	items, err := mr.List("test:queue:messages")
	require.NoError(t, err)
	require.Len(t, items, 1)

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(items[0]), &msg))
	assert.Equal(t, "anything", msg.Type)
	assert.Contains(t, msg.Trace["traceparent"], "4bf92f3577b34da6a3ce929d0e0e4736")
	assert.JSONEq(t, `{"timeframe":"1w","symbols":null}`, string(msg.Payload))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]QueueMode{"": ModeProducerConsumer, "both": ModeProducerConsumer, "producer": ModeProducerOnly, "consumer": ModeConsumerOnly} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMode("sideways")
	assert.Error(t, err)
}

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload[trainPayload](map[string]interface{}{"timeframe": "1d", "symbols": []interface{}{"ETHUSDT"}})
	require.NoError(t, err)
	assert.Equal(t, "1d", p.Timeframe)
	assert.Equal(t, []string{"ETHUSDT"}, p.Symbols)

	p, err = ParsePayload[trainPayload](json.RawMessage(`{"timeframe":"1w"}`))
	require.NoError(t, err)
	assert.Equal(t, "1w", p.Timeframe)

	_, err = ParsePayload[trainPayload](42)
	assert.Error(t, err)
}

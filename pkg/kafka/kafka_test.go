package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestBackoffWithJitter_Bounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.LessOrEqual(t, d, max)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestStartOffset(t *testing.T) {
	assert.Equal(t, kafka.LastOffset, startOffset("latest"))
	assert.Equal(t, kafka.FirstOffset, startOffset("earliest"))
	assert.Equal(t, kafka.FirstOffset, startOffset(""))
}

func TestHookChain_StopsOnBeforeError(t *testing.T) {
	var calls []string
	boom := errors.New("boom")

	first := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "first")
			return ctx, km, append(d, '!'), nil
		},
		Err: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "first.err") },
	}
	second := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "second")
			return ctx, km, d, boom
		},
	}
	never := HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, d []byte) (context.Context, kafka.Message, []byte, error) {
			calls = append(calls, "never")
			return ctx, km, d, nil
		},
	}

	chain := NewHookChain(first, nil, second, never)
	_, _, data, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, []byte("x"))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, []byte("x!"), data)
	assert.Equal(t, []string{"first", "second", "first.err"}, calls)
}

func TestHookChain_RecoversPanics(t *testing.T) {
	panicky := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	}
	_, _, _, err := NewHookChain(panicky).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)

	var he *HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestTimingHook_ObservesDuration(t *testing.T) {
	var (
		gotTopic string
		gotErr   error
	)
	h := TimingHook{Observe: func(topic string, d time.Duration, err error) {
		gotTopic, gotErr = topic, err
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}}

	km := kafka.Message{}
	ctx, _, _, err := h.BeforeHandle(context.Background(), "fincast.candles.closed", km, nil)
	require.NoError(t, err)
	assert.IsType(t, time.Time{}, ctx.Value(CtxStartTime))

	h.AfterHandle(ctx, "fincast.candles.closed", km, nil, nil)
	assert.Equal(t, "fincast.candles.closed", gotTopic)
	assert.NoError(t, gotErr)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}

func TestHeaderCarrier_RoundTripsTraceContext(t *testing.T) {
	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	propagator.Inject(ctx, headerCarrier{headers: &headers})
	require.NotEmpty(t, headers)
	assert.Equal(t, "traceparent", headers[0].Key)

	got := trace.SpanContextFromContext(propagator.Extract(context.Background(), headerCarrier{headers: &headers}))
	assert.Equal(t, tid, got.TraceID())
	assert.True(t, got.IsRemote())
}

func TestTracingHook_ParentsSpanOnHeaders(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	parent := trace.ContextWithSpanContext(context.Background(),
		trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled}))
	var km kafka.Message
	propagator.Inject(parent, headerCarrier{headers: &km.Headers})

	h := NewHookChain(TracingHook{Tracer: tp.Tracer("test")}, TimingHook{})
	ctx, _, _, err := h.BeforeHandle(context.Background(), "fincast.candles.closed", km, nil)
	require.NoError(t, err)
	h.AfterHandle(ctx, "fincast.candles.closed", km, nil, errors.New("bad candle"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "kafka.consume fincast.candles.closed", spans[0].Name())
	assert.Equal(t, tid, spans[0].Parent().TraceID())
	assert.Equal(t, sid, spans[0].Parent().SpanID())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestNewConsumer_RequiresBrokers(t *testing.T) {
	_, err := NewConsumer()
	assert.Error(t, err)

	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}))
	require.NoError(t, err)
	assert.Error(t, c.Start(), "no handlers")
}

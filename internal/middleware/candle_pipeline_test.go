package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordForecast(string, string, string, int) {}
func (m *nopMetrics) RecordConfidence(string, string, float64)   {}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
}
func (m *nopMetrics) RecordLatency(string, float64)                   {}
func (m *nopMetrics) RecordTraining(string, string, float64, float64) {}

func (m *nopMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type stubProc struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *stubProc) Process(context.Context, *models.CandleClosedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *stubProc) n() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func event(sym string) *models.CandleClosedEvent {
	return &models.CandleClosedEvent{Symbol: sym, Timeframe: "1h", Bucket: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Close: 10}
}

func TestValidateCandleEvent(t *testing.T) {
	assert.NoError(t, ValidateCandleEvent(event("BTCUSDT")))
	assert.Error(t, ValidateCandleEvent(nil))
	assert.Error(t, ValidateCandleEvent(&models.CandleClosedEvent{Timeframe: "1h", Bucket: time.Now()}))
	assert.Error(t, ValidateCandleEvent(&models.CandleClosedEvent{Symbol: "X", Timeframe: "15m", Bucket: time.Now()}))
	assert.Error(t, ValidateCandleEvent(&models.CandleClosedEvent{Symbol: "X", Timeframe: "1h"}))
	assert.Error(t, ValidateCandleEvent(&models.CandleClosedEvent{Symbol: "X", Timeframe: "1h", Bucket: time.Now(), Close: -1}))
}

func TestPipelineThrottlesPerSymbol(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	proc := &stubProc{}
	m := &nopMetrics{}
	p := NewCandlePipeline(proc, m, WithMaxRPS(1), withClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, event("BTCUSDT")))
	require.NoError(t, p.Process(ctx, event("BTCUSDT")))
	require.NoError(t, p.Process(ctx, event("ETHUSDT")))
	assert.Equal(t, 2, proc.n())
	assert.Equal(t, 1, m.count("pipeline_throttle"))

	now = now.Add(time.Second)
	require.NoError(t, p.Process(ctx, event("BTCUSDT")))
	assert.Equal(t, 3, proc.n())
}

func TestPipelineBuffersOnDownstreamFailure(t *testing.T) {
	proc := &stubProc{err: errors.New("down")}
	m := &nopMetrics{}
	p := NewCandlePipeline(proc, m, WithMaxRPS(1000), WithBufferSize(1))
	ctx := context.Background()

	require.NoError(t, p.Process(ctx, event("BTCUSDT")), "buffered events are retried here, not by the caller")
	assert.Equal(t, 1, p.Buffered())
	assert.Equal(t, 1, proc.n())

	require.Error(t, p.Process(ctx, event("ETHUSDT")), "a full buffer hands the failure back")
	assert.Equal(t, 1, m.count("pipeline_buffer_full"))
	assert.Equal(t, 1, p.Buffered())
}

func TestPipelineRetriesBufferedEvents(t *testing.T) {
	proc := &stubProc{err: errors.New("down")}
	p := NewCandlePipeline(proc, &nopMetrics{}, WithMaxRPS(1000))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Process(ctx, event("BTCUSDT")))
	proc.mu.Lock()
	proc.err = nil
	proc.mu.Unlock()

	p.Start(ctx)
	defer p.Stop()
	assert.Eventually(t, func() bool { return p.Buffered() == 0 && proc.n() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPipelineRejectsInvalidEvent(t *testing.T) {
	proc := &stubProc{}
	p := NewCandlePipeline(proc, &nopMetrics{})
	assert.Error(t, p.Process(context.Background(), &models.CandleClosedEvent{}))
	assert.Equal(t, 0, proc.n())
}

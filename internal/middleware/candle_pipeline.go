package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, ev *models.CandleClosedEvent) error
}

// CandlePipeline sits between the candle-closed consumer and the forecast refresher.
// It validates, throttles per symbol and timeframe, and buffers events when downstream fails.
type CandlePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.CandleClosedEvent
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time
	now      func() time.Time
}

type PipelineOption func(*CandlePipeline)

// WithMaxRPS caps refreshes per second for one symbol and timeframe.
func WithMaxRPS(n int) PipelineOption {
	return func(p *CandlePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the retry buffer used while downstream is failing.
func WithBufferSize(n int) PipelineOption {
	return func(p *CandlePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func withClock(now func() time.Time) PipelineOption {
	return func(p *CandlePipeline) { p.now = now }
}

func NewCandlePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *CandlePipeline {
	p := &CandlePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   2,
		bufSize:  256,
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.CandleClosedEvent, p.bufSize)
	return p
}

// Start launches the retry loop for buffered events.
func (p *CandlePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case ev := <-p.bufCh:
				if err := p.proc.Process(ctx, ev); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- ev:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

func (p *CandlePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Buffered reports how many events wait for a retry.
func (p *CandlePipeline) Buffered() int { return len(p.bufCh) }

// Process validates and forwards ev. Throttled events are dropped silently.
// A downstream failure is owned by exactly one retrier: the event goes to the retry buffer
// and Process succeeds, or, when the buffer is full, the error is returned to the caller.
func (p *CandlePipeline) Process(ctx context.Context, ev *models.CandleClosedEvent) error {
	start := p.now()
	if err := ValidateCandleEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(ev.Symbol+"|"+ev.Timeframe, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, ev); err != nil {
		p.metrics.RecordError("pipeline_process")
		select {
		case p.bufCh <- ev:
			return nil
		default:
			p.metrics.RecordError("pipeline_buffer_full")
			return fmt.Errorf("pipeline downstream: %w", err)
		}
	}
	p.metrics.RecordLatency("pipeline_process", p.now().Sub(start).Seconds())
	return nil
}

func ValidateCandleEvent(ev *models.CandleClosedEvent) error {
	if ev == nil {
		return fmt.Errorf("candle event nil")
	}
	if ev.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if !domrepo.IsValidTimeframe(domrepo.Timeframe(ev.Timeframe)) {
		return fmt.Errorf("unsupported timeframe %q", ev.Timeframe)
	}
	if ev.Bucket.IsZero() {
		return fmt.Errorf("bucket missing")
	}
	if ev.Close < 0 || ev.Volume < 0 {
		return fmt.Errorf("negative close/volume")
	}
	return nil
}

func (p *CandlePipeline) allow(key string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[key]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}

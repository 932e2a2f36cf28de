package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/forecast"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
)

// CandleProcessor accepts closed-candle events.
type CandleProcessor interface {
	Process(ctx context.Context, ev *models.CandleClosedEvent) error
}

// KafkaCandlesHandler consumes closed-candle events from Kafka.
type KafkaCandlesHandler struct {
	topic   string
	next    CandleProcessor
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, next CandleProcessor, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, next: next, metrics: metrics}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, tf, bucket, c, v}
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var ev models.CandleClosedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if !ev.Bucket.IsZero() {
		h.metrics.RecordLatency("candle_event_lag", time.Since(ev.Bucket).Seconds())
	}
	return h.next.Process(ctx, &ev)
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)

// CandleRefresher drops stale cached forecasts for a closed candle and, when enabled,
// regenerates the default forecast so subscribers receive it.
type CandleRefresher struct {
	uc      *ForecastUseCase
	steps   int
	mode    forecast.Mode
	refresh bool
	l       *applogger.Logger
}

func NewCandleRefresher(uc *ForecastUseCase, steps int, mode forecast.Mode, refresh bool, l *applogger.Logger) *CandleRefresher {
	if l == nil {
		l = applogger.Nop()
	}
	return &CandleRefresher{uc: uc, steps: steps, mode: mode, refresh: refresh, l: l}
}

func (r *CandleRefresher) Process(ctx context.Context, ev *models.CandleClosedEvent) error {
	tf := domrepo.Timeframe(ev.Timeframe)
	if err := r.uc.Invalidate(ctx, ev.Symbol, tf); err != nil {
		return fmt.Errorf("invalidate %s %s: %w", ev.Symbol, tf, err)
	}
	if !r.refresh {
		return nil
	}
	p, err := r.uc.Forecast(ctx, ForecastParams{
		Symbol:    ev.Symbol,
		Timeframe: tf,
		Steps:     r.steps,
		Mode:      r.mode,
		Fresh:     true,
	})
	if errors.Is(err, domsvc.ErrInsufficientHistory) || errors.Is(err, domsvc.ErrModelNotFound) {
		r.l.Warn("forecast refresh skipped",
			applogger.String("symbol", ev.Symbol),
			applogger.String("timeframe", string(tf)),
			applogger.Error(err))
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh %s %s: %w", ev.Symbol, tf, err)
	}
	r.l.Debug("forecast refreshed",
		applogger.String("symbol", ev.Symbol),
		applogger.String("timeframe", string(tf)),
		applogger.String("direction", p.Direction))
	return nil
}

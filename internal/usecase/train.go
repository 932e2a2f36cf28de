package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/features"
	"FinCast/internal/services/training"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/tracing"
)

// ErrTrainingInProgress is returned when another run holds the timeframe's training lock.
var ErrTrainingInProgress = errors.New("training already in progress")

// ModelInvalidator drops cached models after new artifacts are written.
type ModelInvalidator interface {
	Invalidate(ctx context.Context, tf domrepo.Timeframe) error
}

type TrainConfig struct {
	Symbols []string
	History int
	Timeout time.Duration
}

// TrainUseCase fetches candle history, fits every configured family and persists the artifacts.
type TrainUseCase struct {
	store      domrepo.FeatureStore
	models     domrepo.ModelStore
	builder    *features.Builder
	base       training.Config
	invalidate ModelInvalidator
	locker     cache.Locker
	metrics    domrepo.Metrics
	l          *applogger.Logger
	tracer     trace.Tracer
	cfg        TrainConfig
	now        func() time.Time
}

func NewTrainUseCase(
	store domrepo.FeatureStore,
	modelStore domrepo.ModelStore,
	b *features.Builder,
	base training.Config,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg TrainConfig,
) *TrainUseCase {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	if cfg.History <= 0 {
		cfg.History = 5000
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &TrainUseCase{
		store:   store,
		models:  modelStore,
		builder: b,
		base:    base,
		metrics: metrics,
		l:       l,
		tracer:  tracing.Tracer("fincast/usecase"),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (uc *TrainUseCase) SetInvalidator(inv ModelInvalidator) { uc.invalidate = inv }

// SetLocker serializes runs per timeframe, across processes when the locker is shared.
func (uc *TrainUseCase) SetLocker(l cache.Locker) { uc.locker = l }

type TrainParams struct {
	Timeframe domrepo.Timeframe
	Symbols   []string
	Families  []models.ModelFamily
}

type TrainReport struct {
	Timeframe string             `json:"timeframe"`
	Version   string             `json:"version"`
	Symbols   []string           `json:"symbols"`
	Skipped   []string           `json:"skipped,omitempty"`
	Models    []models.ModelMeta `json:"models"`
	Duration  time.Duration      `json:"duration"`
}

// Run trains one timeframe. Nothing is persisted unless every family fits.
func (uc *TrainUseCase) Run(ctx context.Context, p TrainParams) (*TrainReport, error) {
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q", p.Timeframe)
	}
	symbols := p.Symbols
	if len(symbols) == 0 {
		symbols = uc.cfg.Symbols
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to train on")
	}

	if uc.locker != nil {
		key := "train:" + string(p.Timeframe)
		ok, err := uc.locker.TryLock(ctx, key, uc.cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("acquire training lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w for %s", ErrTrainingInProgress, p.Timeframe)
		}
		defer func() {
			if err := uc.locker.Unlock(context.Background(), key); err != nil {
				uc.l.Warn("training lock release failed", applogger.String("timeframe", string(p.Timeframe)), applogger.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()
	ctx, span := uc.tracer.Start(ctx, "training.run", trace.WithAttributes(
		attribute.String("timeframe", string(p.Timeframe)),
		attribute.StringSlice("symbols", symbols),
	))
	defer span.End()

	start := uc.now()
	uc.logMemory(ctx, "training started", p.Timeframe)

	report, err := uc.run(ctx, p.Timeframe, symbols, p.Families, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		uc.metrics.RecordError("training")
		uc.l.Error("training failed", applogger.String("timeframe", string(p.Timeframe)), applogger.Error(err))
		return nil, err
	}
	report.Duration = uc.now().Sub(start)
	uc.metrics.RecordLatency("training", report.Duration.Seconds())
	uc.logMemory(ctx, "training finished", p.Timeframe)
	return report, nil
}

func (uc *TrainUseCase) run(ctx context.Context, tf domrepo.Timeframe, symbols []string, families []models.ModelFamily, start time.Time) (*TrainReport, error) {
	series := make(map[string][]models.Candle, len(symbols))
	for _, sym := range symbols {
		candles, err := uc.store.GetLatestNCandles(ctx, sym, uc.cfg.History, tf)
		if err != nil {
			return nil, fmt.Errorf("load %s history: %w", sym, err)
		}
		series[sym] = candles
	}

	cfg := uc.base
	if len(families) > 0 {
		cfg.Families = families
	}
	version := start.UTC().Format("20060102T150405Z")
	res, err := training.NewPipeline(uc.builder, cfg).Execute(ctx, training.Run{
		Timeframe: tf,
		Series:    series,
		Version:   version,
		TrainedAt: start.UTC(),
	})
	if err != nil {
		return nil, err
	}

	report := &TrainReport{
		Timeframe: string(tf),
		Version:   version,
		Symbols:   res.Symbols,
		Skipped:   res.Skipped,
	}
	if err := uc.models.Save(ctx, res.Models...); err != nil {
		return nil, fmt.Errorf("save %s models: %w", version, err)
	}
	for _, m := range res.Models {
		meta := m.Meta()
		report.Models = append(report.Models, meta)
		uc.metrics.RecordTraining(string(tf), string(meta.Family), meta.Metrics.MAE, meta.Metrics.DirectionalAccuracy)
		uc.l.Info("model trained",
			applogger.String("timeframe", string(tf)),
			applogger.String("family", string(meta.Family)),
			applogger.String("version", meta.Version),
			applogger.Float64("holdout_mae", meta.Metrics.MAE),
			applogger.Float64("directional_accuracy", meta.Metrics.DirectionalAccuracy),
			applogger.Int("train_samples", meta.Metrics.TrainSamples))
	}
	if uc.invalidate != nil {
		if err := uc.invalidate.Invalidate(ctx, tf); err != nil && !errors.Is(err, context.Canceled) {
			uc.l.Warn("model cache invalidation failed", applogger.String("timeframe", string(tf)), applogger.Error(err))
		}
	}
	return report, nil
}

func (uc *TrainUseCase) logMemory(ctx context.Context, msg string, tf domrepo.Timeframe) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		uc.l.Info(msg, applogger.String("timeframe", string(tf)))
		return
	}
	uc.l.Info(msg,
		applogger.String("timeframe", string(tf)),
		applogger.Float64("mem_used_percent", vm.UsedPercent),
		applogger.Uint64("mem_available_mb", vm.Available/1024/1024))
}

// Models lists the trained artifacts available for tf.
func (uc *TrainUseCase) Models(ctx context.Context, tf domrepo.Timeframe) ([]models.ModelMeta, error) {
	metas, err := uc.models.List(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	if metas == nil {
		metas = []models.ModelMeta{}
	}
	return metas, nil
}

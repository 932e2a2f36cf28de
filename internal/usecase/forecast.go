package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/forecast"
	"FinCast/internal/services/predictor"
	"FinCast/pkg/cache"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/tracing"
)

// EnsembleMember names a model family and its configured weight.
type EnsembleMember struct {
	Family models.ModelFamily
	Weight float64
}

// Broadcaster pushes fresh forecasts to live subscribers.
type Broadcaster interface {
	Broadcast(p models.ForecastPayload)
}

type ForecastConfig struct {
	History  int
	CacheTTL time.Duration
	Timeout  time.Duration
	Members  []EnsembleMember
}

// ForecastUseCase loads candles and models, runs the forecaster and fans the result out
// to the cache, the forecast history, Kafka and websocket subscribers.
type ForecastUseCase struct {
	store       domrepo.FeatureStore
	models      domrepo.ModelStore
	forecaster  *forecast.Forecaster
	cache       cache.Service
	flight      singleflight.Group
	history     domrepo.ForecastStore
	publisher   domrepo.ForecastPublisher
	broadcaster Broadcaster
	metrics     domrepo.Metrics
	l           *applogger.Logger
	tracer      trace.Tracer
	cfg         ForecastConfig
	now         func() time.Time
}

func NewForecastUseCase(
	store domrepo.FeatureStore,
	modelStore domrepo.ModelStore,
	f *forecast.Forecaster,
	c cache.Service,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	cfg ForecastConfig,
) *ForecastUseCase {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if len(cfg.Members) == 0 {
		cfg.Members = []EnsembleMember{{Family: models.FamilyLinear, Weight: 1}}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &ForecastUseCase{
		store:      store,
		models:     modelStore,
		forecaster: f,
		cache:      c,
		publisher:  noopPublisher{},
		metrics:    metrics,
		l:          l,
		tracer:     tracing.Tracer("fincast/usecase"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetHistory enables persisting every generated forecast.
func (uc *ForecastUseCase) SetHistory(h domrepo.ForecastStore) { uc.history = h }

func (uc *ForecastUseCase) SetPublisher(p domrepo.ForecastPublisher) {
	if p != nil {
		uc.publisher = p
	}
}

func (uc *ForecastUseCase) SetBroadcaster(b Broadcaster) { uc.broadcaster = b }

type ForecastParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Steps     int
	Mode      forecast.Mode
	Fresh     bool
}

func forecastKey(symbol string, tf domrepo.Timeframe, mode forecast.Mode, steps int) string {
	return fmt.Sprintf("forecast:%s:%s:%s:%d", symbol, tf, mode, steps)
}

// Forecast returns a cached forecast when one exists, otherwise generates a new one.
func (uc *ForecastUseCase) Forecast(ctx context.Context, p ForecastParams) (*models.ForecastPayload, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if !domrepo.IsValidTimeframe(p.Timeframe) {
		return nil, fmt.Errorf("unsupported timeframe %q", p.Timeframe)
	}
	if p.Mode == "" {
		p.Mode = forecast.ModeIterative
	}

	ctx, span := uc.tracer.Start(ctx, "forecast.generate", trace.WithAttributes(
		attribute.String("symbol", p.Symbol),
		attribute.String("timeframe", string(p.Timeframe)),
		attribute.String("mode", string(p.Mode)),
		attribute.Int("steps", p.Steps),
	))
	defer span.End()

	key := forecastKey(p.Symbol, p.Timeframe, p.Mode, p.Steps)
	if !p.Fresh && uc.cache != nil {
		payload, hit, err := cache.GetOrLoad(ctx, uc.cache, &uc.flight, key, uc.cfg.CacheTTL,
			func(ctx context.Context) (models.ForecastPayload, error) { return uc.produce(ctx, p) })
		span.SetAttributes(attribute.Bool("cache_hit", hit))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return &payload, nil
	}

	payload, err := uc.produce(ctx, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if uc.cache != nil && uc.cfg.CacheTTL > 0 {
		if err := uc.cache.Set(ctx, key, payload, uc.cfg.CacheTTL); err != nil {
			uc.l.Warn("forecast cache set failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return &payload, nil
}

// produce generates a forecast, records its metrics and fans it out.
func (uc *ForecastUseCase) produce(ctx context.Context, p ForecastParams) (models.ForecastPayload, error) {
	start := time.Now()
	payload, err := uc.generate(ctx, p)
	if err != nil {
		uc.metrics.RecordError(errorKind(err))
		return models.ForecastPayload{}, err
	}
	uc.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	uc.metrics.RecordForecast(p.Symbol, string(p.Timeframe), string(p.Mode), len(payload.Steps))
	uc.metrics.RecordConfidence(p.Symbol, string(p.Timeframe), payload.AvgConfidence)
	uc.fanOut(ctx, *payload)
	return *payload, nil
}

func (uc *ForecastUseCase) generate(ctx context.Context, p ForecastParams) (*models.ForecastPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	n := uc.cfg.History
	if need := uc.forecaster.Builder().Lookback() + 1; n < need {
		n = need
	}
	candles, err := uc.store.GetLatestNCandles(ctx, p.Symbol, n, p.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}

	pred, err := uc.Predictor(ctx, p.Timeframe)
	if err != nil {
		return nil, err
	}

	f, err := uc.forecaster.Generate(forecast.Request{
		Symbol:    p.Symbol,
		Timeframe: p.Timeframe,
		Candles:   candles,
		Steps:     p.Steps,
		Mode:      p.Mode,
	}, pred)
	if err != nil {
		return nil, err
	}
	out := models.NewForecastPayload(uuid.NewString(), f, uc.now().UTC())
	return &out, nil
}

// fanOut delivers a fresh forecast downstream. Failures are logged, never returned.
func (uc *ForecastUseCase) fanOut(ctx context.Context, p models.ForecastPayload) {
	if uc.history != nil {
		if err := uc.history.StoreForecast(ctx, p); err != nil {
			uc.metrics.RecordError("forecast_store")
			uc.l.Warn("forecast history insert failed", applogger.String("symbol", p.Symbol), applogger.Error(err))
		}
	}
	if err := uc.publisher.Publish(ctx, p); err != nil {
		uc.metrics.RecordError("forecast_publish")
		uc.l.Warn("forecast publish failed", applogger.String("symbol", p.Symbol), applogger.Error(err))
	}
	if uc.broadcaster != nil {
		uc.broadcaster.Broadcast(p)
	}
}

// Predictor builds the configured ensemble for tf from the model store.
func (uc *ForecastUseCase) Predictor(ctx context.Context, tf domrepo.Timeframe) (domsvc.Predictor, error) {
	return BuildEnsemble(ctx, tf, uc.cfg.Members, uc.models, uc.l)
}

// BuildEnsemble loads each member's model. Members without a trained model are skipped and
// the remaining weights renormalized; a single survivor becomes a plain predictor.
func BuildEnsemble(ctx context.Context, tf domrepo.Timeframe, members []EnsembleMember, store domrepo.ModelStore, l *applogger.Logger) (domsvc.Predictor, error) {
	if len(members) == 0 {
		return nil, domsvc.ErrEmptyEnsemble
	}
	loaded := make([]predictor.Member, 0, len(members))
	var missing []string
	total := 0.0
	for _, m := range members {
		model, err := store.Load(ctx, tf, m.Family)
		if errors.Is(err, domsvc.ErrModelNotFound) {
			missing = append(missing, string(m.Family))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", m.Family, err)
		}
		if b, ok := model.(domsvc.ContextBinder); ok {
			model = b.WithContext(ctx)
		}
		loaded = append(loaded, predictor.Member{Model: model, Weight: m.Weight})
		total += m.Weight
	}
	if len(loaded) == 0 {
		return nil, fmt.Errorf("%w: no trained models for %s", domsvc.ErrModelNotFound, tf)
	}
	if len(missing) > 0 && l != nil {
		l.Warn("ensemble members missing, renormalizing",
			applogger.String("timeframe", string(tf)),
			applogger.Strings("missing", missing))
	}
	if len(loaded) == 1 {
		return predictor.NewSinglePredictor(loaded[0].Model), nil
	}
	if total <= 0 || math.IsNaN(total) {
		return nil, fmt.Errorf("%w: member weights sum to %v", domsvc.ErrInvalidWeights, total)
	}
	for i := range loaded {
		loaded[i].Weight /= total
	}
	return predictor.NewEnsemblePredictor(loaded...)
}

// Invalidate drops every cached forecast for symbol on tf.
func (uc *ForecastUseCase) Invalidate(ctx context.Context, symbol string, tf domrepo.Timeframe) error {
	if uc.cache == nil {
		return nil
	}
	return uc.cache.DeleteByPattern(ctx, fmt.Sprintf("forecast:%s:%s:*", symbol, tf))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domsvc.ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, domsvc.ErrModelNotFound):
		return "model_not_found"
	case errors.Is(err, domsvc.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, domsvc.ErrModelInference):
		return "model_inference"
	case errors.Is(err, domsvc.ErrInvalidSteps):
		return "invalid_steps"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "forecast"
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.ForecastPayload) error { return nil }
func (noopPublisher) Close() error                                          { return nil }

package forecast

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/confidence"
	"FinCast/internal/services/features"
	"FinCast/internal/services/predictor"
)

// Mode selects how steps beyond the first are produced.
type Mode string

const (
	// ModeIterative feeds each predicted candle back into the feature window.
	ModeIterative Mode = "iterative"
	// ModeDirect predicts the whole horizon from the initial feature vector.
	ModeDirect Mode = "direct"
)

// Options tune the orchestrator.
type Options struct {
	MaxSteps    int
	FlatEpsilon float64
	TopDrivers  int
}

func DefaultOptions() Options {
	return Options{MaxSteps: 30, FlatEpsilon: 0, TopDrivers: 5}
}

// Request is one forecast run. Candles must be ascending and evenly spaced on Timeframe.
type Request struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Candles   []models.Candle
	Steps     int
	Mode      Mode
}

// Forecaster runs the multi-step loop. It holds no per-request state and is safe for concurrent use.
type Forecaster struct {
	builder   *features.Builder
	estimator confidence.Estimator
	opts      Options
}

func NewForecaster(b *features.Builder, est confidence.Estimator, opts Options) *Forecaster {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultOptions().MaxSteps
	}
	return &Forecaster{builder: b, estimator: est, opts: opts}
}

func (f *Forecaster) Builder() *features.Builder { return f.builder }

// Generate produces a forecast or an error; a failure at any step discards all steps.
func (f *Forecaster) Generate(req Request, p domsvc.Predictor) (*models.Forecast, error) {
	if req.Steps < 1 || req.Steps > f.opts.MaxSteps {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", domsvc.ErrInvalidSteps, req.Steps, f.opts.MaxSteps)
	}
	if req.Mode == "" {
		req.Mode = ModeIterative
	}
	state, err := features.NewState(req.Candles, f.builder.Lookback())
	if err != nil {
		return nil, err
	}

	var steps []models.ForecastStep
	switch req.Mode {
	case ModeIterative:
		steps, err = f.iterate(req, state, p)
	case ModeDirect:
		steps, err = f.direct(req, state, p)
	default:
		return nil, fmt.Errorf("forecast: unknown mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	out := &models.Forecast{
		Symbol:    req.Symbol,
		Timeframe: string(req.Timeframe),
		Mode:      string(req.Mode),
		AsOf:      state.Last().Bucket,
		Steps:     steps,
		Direction: steps[0].Direction,
		Drivers:   f.drivers(p),
	}
	sum := 0.0
	for _, s := range steps {
		sum += s.Confidence
	}
	out.AvgConfidence = sum / float64(len(steps))
	if v, ok := p.(domsvc.Versioned); ok {
		out.ModelVersion = v.Version()
	}
	return out, nil
}

func (f *Forecaster) iterate(req Request, state features.State, p domsvc.Predictor) ([]models.ForecastStep, error) {
	asOf := state.Last().Bucket
	steps := make([]models.ForecastStep, 0, req.Steps)
	for k := 1; k <= req.Steps; k++ {
		fv, err := f.builder.FromState(state)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k, err)
		}
		pred, err := p.PredictNext(fv)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", k, err)
		}
		prev := state.Last()
		step := f.step(req, k, asOf, prev, fv.Value(features.ATRName), pred)
		steps = append(steps, step)
		state = state.Advance(models.Candle{
			Bucket: step.Timestamp,
			Symbol: prev.Symbol,
			Open:   step.Open,
			High:   step.High,
			Low:    step.Low,
			Close:  step.Close,
			Volume: prev.Volume,
		})
	}
	return steps, nil
}

func (f *Forecaster) direct(req Request, state features.State, p domsvc.Predictor) ([]models.ForecastStep, error) {
	mp, ok := p.(domsvc.MultiStepPredictor)
	if !ok {
		return nil, domsvc.ErrDirectUnsupported
	}
	fv, err := f.builder.FromState(state)
	if err != nil {
		return nil, err
	}
	preds, err := mp.PredictSteps(fv, req.Steps)
	if err != nil {
		return nil, err
	}
	atr := fv.Value(features.ATRName)
	prev := state.Last()
	asOf := prev.Bucket
	steps := make([]models.ForecastStep, 0, req.Steps)
	for k, pred := range preds {
		step := f.step(req, k+1, asOf, prev, atr, pred)
		steps = append(steps, step)
		prev = models.Candle{Bucket: step.Timestamp, Close: step.Close}
	}
	return steps, nil
}

// step derives step k. Timestamps count from asOf so calendar months do not drift.
func (f *Forecaster) step(req Request, k int, asOf time.Time, prev models.Candle, atr float64, pred domsvc.Prediction) models.ForecastStep {
	open, high, low := PriceRange(prev.Close, pred.Close, atr)
	var spread *confidence.Spread
	if pred.HasVariance {
		spread = &confidence.Spread{Mean: pred.Close, Variance: pred.Variance}
	}
	return models.ForecastStep{
		StepNumber: k,
		Timestamp:  req.Timeframe.Advance(asOf, k),
		Open:       open,
		High:       high,
		Low:        low,
		Close:      pred.Close,
		Confidence: f.estimator.ConfidenceForStep(k, req.Steps, spread),
		Direction:  DirectionOf(prev.Close, pred.Close, f.opts.FlatEpsilon),
	}
}

func (f *Forecaster) drivers(p domsvc.Predictor) []string {
	ex, ok := p.(domsvc.Explainer)
	if !ok {
		return []string{}
	}
	return predictor.TopDrivers(ex.Importances(), f.opts.TopDrivers)
}

// PriceRange derives open/high/low for a predicted close: open is the previous close and the
// range is price +/- atr/2, widened to contain open and kept strictly positive.
func PriceRange(prevClose, price, atr float64) (open, high, low float64) {
	half := math.Abs(atr) / 2
	open = prevClose
	high = math.Max(price+half, math.Max(open, price))
	low = math.Min(price-half, math.Min(open, price))
	if low <= 0 {
		low = math.Min(open, price)
	}
	return open, high, low
}

// DirectionOf compares price to prev; moves within eps are flat.
func DirectionOf(prev, price, eps float64) models.Direction {
	switch d := price - prev; {
	case d > eps:
		return models.DirectionUp
	case d < -eps:
		return models.DirectionDown
	default:
		return models.DirectionFlat
	}
}

package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/confidence"
	"FinCast/internal/services/features"
	"FinCast/internal/services/predictor"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func hourlyCandles(n int, start float64) []models.Candle {
	out := make([]models.Candle, n)
	for i := range out {
		c := start + float64(i)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Symbol: "BTCUSDT",
			Open:   c - 1,
			High:   c + 0.5,
			Low:    c - 1.5,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

// offsetModel predicts the last close plus a fixed offset.
type offsetModel struct {
	meta   models.ModelMeta
	offset float64
}

func (m offsetModel) Meta() models.ModelMeta { return m.meta }

func (m offsetModel) PredictNext(fv models.FeatureVector) (float64, error) {
	return fv.Value(features.NameClose) + m.offset, nil
}

// stepModel predicts close + k for step k in direct mode.
type stepModel struct{ offsetModel }

func (m stepModel) PredictSteps(fv models.FeatureVector, n int) ([]float64, error) {
	out := make([]float64, n)
	for k := range out {
		out[k] = fv.Value(features.NameClose) + float64(k+1)
	}
	return out, nil
}

type flakyModel struct {
	offsetModel
	calls  *int
	failAt int
}

func (m flakyModel) PredictNext(fv models.FeatureVector) (float64, error) {
	*m.calls++
	if *m.calls == m.failAt {
		return 0, errors.New("model crashed")
	}
	return m.offsetModel.PredictNext(fv)
}

type zigzagModel struct{ offsetModel }

func (m zigzagModel) PredictNext(fv models.FeatureVector) (float64, error) {
	c := fv.Value(features.NameClose)
	if int(c)%2 == 0 {
		return c + 3, nil
	}
	return c - 1, nil
}

func setup(t *testing.T, strategy string) (*Forecaster, models.ModelMeta) {
	t.Helper()
	b, err := features.NewBuilder(features.DefaultConfig())
	require.NoError(t, err)
	cfg := confidence.DefaultConfig()
	cfg.Strategy = strategy
	est, err := confidence.New(cfg)
	require.NoError(t, err)
	meta := models.ModelMeta{Family: models.FamilyLinear, Version: "t", Features: b.Schema(), SchemaID: b.SchemaID()}
	return NewForecaster(b, est, DefaultOptions()), meta
}

func TestIterativeForecastEndToEnd(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	candles := hourlyCandles(200, 200)
	p := predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1})

	out, err := f.Generate(Request{Symbol: "BTCUSDT", Timeframe: domrepo.TF1h, Candles: candles, Steps: 5}, p)
	require.NoError(t, err)
	require.Len(t, out.Steps, 5)

	wantConf := []float64{0.85, 0.7875, 0.725, 0.6625, 0.60}
	for i, s := range out.Steps {
		assert.Equal(t, i+1, s.StepNumber)
		assert.Equal(t, 400.0+float64(i), s.Close)
		assert.Equal(t, 399.0+float64(i), s.Open)
		assert.Equal(t, models.DirectionUp, s.Direction)
		assert.InDelta(t, wantConf[i], s.Confidence, 1e-12)
		assert.Equal(t, candles[199].Bucket.Add(time.Duration(i+1)*time.Hour), s.Timestamp)
		assert.GreaterOrEqual(t, s.High, s.Close)
		assert.LessOrEqual(t, s.Low, s.Open)
	}
	assert.InDelta(t, 0.725, out.AvgConfidence, 1e-12)
	assert.Equal(t, models.DirectionUp, out.Direction)
	assert.Equal(t, candles[199].Bucket, out.AsOf)
	assert.Empty(t, out.Drivers)
	assert.Equal(t, "linear@t", out.ModelVersion)
	assert.Equal(t, string(ModeIterative), out.Mode)

	assert.Equal(t, 399.0, candles[199].Close, "history must not be mutated")
	assert.Len(t, candles, 200)
}

func TestForecastInsufficientHistory(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	p := predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1})

	out, err := f.Generate(Request{Symbol: "BTCUSDT", Timeframe: domrepo.TF1h, Candles: hourlyCandles(10, 100), Steps: 5}, p)
	assert.ErrorIs(t, err, domsvc.ErrInsufficientHistory)
	assert.Nil(t, out)
}

func TestForecastIsDeterministic(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	candles := hourlyCandles(120, 50)
	p := predictor.NewSinglePredictor(zigzagModel{offsetModel{meta: meta}})
	req := Request{Symbol: "BTCUSDT", Timeframe: domrepo.TF1h, Candles: candles, Steps: 10}

	a, err := f.Generate(req, p)
	require.NoError(t, err)
	b, err := f.Generate(req, p)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDirectionMatchesPreviousClose(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	candles := hourlyCandles(120, 50)
	p := predictor.NewSinglePredictor(zigzagModel{offsetModel{meta: meta}})

	out, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: candles, Steps: 8}, p)
	require.NoError(t, err)
	prev := candles[len(candles)-1].Close
	for _, s := range out.Steps {
		switch {
		case s.Close > prev:
			assert.Equal(t, models.DirectionUp, s.Direction)
		case s.Close < prev:
			assert.Equal(t, models.DirectionDown, s.Direction)
		default:
			assert.Equal(t, models.DirectionFlat, s.Direction)
		}
		prev = s.Close
	}
	assert.Equal(t, out.Steps[0].Direction, out.Direction)
}

func TestFailureMidLoopDiscardsForecast(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	calls := 0
	p := predictor.NewSinglePredictor(flakyModel{offsetModel: offsetModel{meta: meta, offset: 1}, calls: &calls, failAt: 3})

	out, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: hourlyCandles(100, 10), Steps: 5}, p)
	assert.ErrorIs(t, err, domsvc.ErrModelInference)
	assert.Nil(t, out)
	assert.Equal(t, 3, calls)
}

func TestSchemaMismatchAborts(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	meta.Features = meta.Features[1:]
	p := predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1})

	_, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: hourlyCandles(100, 10), Steps: 2}, p)
	assert.ErrorIs(t, err, domsvc.ErrSchemaMismatch)
}

func TestInvalidSteps(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	p := predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1})
	for _, n := range []int{0, -1, 31} {
		_, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: hourlyCandles(100, 10), Steps: n}, p)
		assert.ErrorIs(t, err, domsvc.ErrInvalidSteps)
	}
}

func TestEnsembleVarianceLowersConfidence(t *testing.T) {
	f, meta := setup(t, confidence.StrategyEnsembleVariance)
	candles := hourlyCandles(100, 100)
	third := 1.0 / 3
	ensemble := func(offsets ...float64) *predictor.EnsemblePredictor {
		members := make([]predictor.Member, len(offsets))
		for i, o := range offsets {
			members[i] = predictor.Member{Model: offsetModel{meta: meta, offset: o}, Weight: third}
		}
		e, err := predictor.NewEnsemblePredictor(members...)
		require.NoError(t, err)
		return e
	}
	req := Request{Timeframe: domrepo.TF1h, Candles: candles, Steps: 3}

	wide, err := f.Generate(req, ensemble(0, 2, 4))
	require.NoError(t, err)
	narrow, err := f.Generate(req, ensemble(1, 2, 3))
	require.NoError(t, err)

	assert.InDelta(t, 201, wide.Steps[0].Close, 1e-9)
	assert.InDelta(t, 201, narrow.Steps[0].Close, 1e-9)
	for i := range wide.Steps {
		assert.Less(t, wide.Steps[i].Confidence, narrow.Steps[i].Confidence)
	}
	assert.Less(t, wide.AvgConfidence, narrow.AvgConfidence)
}

func TestDirectMode(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	candles := hourlyCandles(100, 100)

	_, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: candles, Steps: 3, Mode: ModeDirect},
		predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1}))
	assert.ErrorIs(t, err, domsvc.ErrDirectUnsupported)

	out, err := f.Generate(Request{Timeframe: domrepo.TF1h, Candles: candles, Steps: 3, Mode: ModeDirect},
		predictor.NewSinglePredictor(stepModel{offsetModel{meta: meta}}))
	require.NoError(t, err)
	require.Len(t, out.Steps, 3)
	assert.Equal(t, []float64{200, 201, 202}, []float64{out.Steps[0].Close, out.Steps[1].Close, out.Steps[2].Close})
	assert.Equal(t, 200.0, out.Steps[1].Open)
	assert.Equal(t, string(ModeDirect), out.Mode)
}

func TestMonthlyTimestamps(t *testing.T) {
	f, meta := setup(t, confidence.StrategyTimeDecay)
	candles := hourlyCandles(80, 100)
	start := time.Date(2019, 1, 31, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i].Bucket = start.AddDate(0, i, 0)
	}
	last := candles[len(candles)-1].Bucket
	require.Equal(t, time.Date(2025, 8, 31, 0, 0, 0, 0, time.UTC), last)

	want := []time.Time{
		time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 10, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for _, mode := range []Mode{ModeIterative, ModeDirect} {
		t.Run(string(mode), func(t *testing.T) {
			var p domsvc.Predictor = predictor.NewSinglePredictor(offsetModel{meta: meta, offset: 1})
			if mode == ModeDirect {
				p = predictor.NewSinglePredictor(stepModel{offsetModel{meta: meta}})
			}
			out, err := f.Generate(Request{Timeframe: domrepo.TF1M, Candles: candles, Steps: len(want), Mode: mode}, p)
			require.NoError(t, err)
			require.Len(t, out.Steps, len(want))
			for i, st := range out.Steps {
				assert.Equal(t, want[i], st.Timestamp, "step %d", i+1)
				assert.Equal(t, last.AddDate(0, i+1, 0), st.Timestamp)
			}
		})
	}
}

func TestPriceRange(t *testing.T) {
	open, high, low := PriceRange(100, 105, 4)
	assert.Equal(t, 100.0, open)
	assert.Equal(t, 107.0, high)
	assert.Equal(t, 100.0, low)

	_, _, low = PriceRange(1, 0.5, 10)
	assert.Greater(t, low, 0.0)
}

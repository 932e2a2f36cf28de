package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

func rampCandles(n int, start float64) []models.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		c := start + float64(i)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Symbol: "BTCUSDT",
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100 + float64(i%7),
		}
	}
	return out
}

func waveCandles(n int) []models.Candle {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		c := 1000 + 50*math.Sin(float64(i)/3) + 10*math.Cos(float64(i)*1.7)
		out[i] = models.Candle{
			Bucket: t0.Add(time.Duration(i) * time.Hour),
			Symbol: "ETHUSDT",
			Open:   c - 2,
			High:   c + 5,
			Low:    c - 5,
			Close:  c,
			Volume: 50 + 20*math.Abs(math.Sin(float64(i))),
		}
	}
	return out
}

func newDefaultBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultConfig())
	require.NoError(t, err)
	return b
}

func TestDefaultLookback(t *testing.T) {
	b := newDefaultBuilder(t)
	assert.Equal(t, 50, b.Lookback())
}

func TestBuildLookbackBoundary(t *testing.T) {
	b := newDefaultBuilder(t)
	w := b.Lookback()
	candles := rampCandles(w+1, 100)

	_, err := b.Build(candles, w-1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domsvc.ErrInsufficientHistory)

	fv, err := b.Build(candles, w)
	require.NoError(t, err)
	assert.Equal(t, len(b.Schema()), fv.Len())
}

func TestBuildIndexOutOfRange(t *testing.T) {
	b := newDefaultBuilder(t)
	_, err := b.Build(rampCandles(60, 100), 60)
	require.Error(t, err)
	assert.NotErrorIs(t, err, domsvc.ErrInsufficientHistory)
}

func TestSchemaIndependentOfValues(t *testing.T) {
	b := newDefaultBuilder(t)
	a, err := b.Build(rampCandles(80, 100), 70)
	require.NoError(t, err)
	c, err := b.Build(waveCandles(120), 119)
	require.NoError(t, err)

	assert.Equal(t, a.Names(), c.Names())
	assert.Equal(t, b.Schema(), a.Names())
	assert.Equal(t, a.SchemaID, c.SchemaID)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := newDefaultBuilder(t)
	candles := waveCandles(200)
	first, err := b.Build(candles, 150)
	require.NoError(t, err)
	second, err := b.Build(candles, 150)
	require.NoError(t, err)
	assert.Equal(t, first.Values(), second.Values())
}

func TestBuildIgnoresFutureCandles(t *testing.T) {
	b := newDefaultBuilder(t)
	candles := waveCandles(120)
	short, err := b.Build(candles[:101], 100)
	require.NoError(t, err)
	long, err := b.Build(candles, 100)
	require.NoError(t, err)
	assert.Equal(t, short.Values(), long.Values())
}

func TestBuildValues(t *testing.T) {
	b := newDefaultBuilder(t)
	candles := rampCandles(200, 200)
	fv, err := b.Build(candles, 199)
	require.NoError(t, err)

	assert.Equal(t, 399.0, fv.Value(NameClose))
	assert.Equal(t, 398.0, fv.Value(CloseLagName(1)))
	assert.Equal(t, 394.0, fv.Value(CloseLagName(5)))
	assert.InDelta(t, (399.0+398.0+397.0+396.0+395.0+394.0+393.0+392.0+391.0+390.0)/10, fv.Value("sma_10"), 1e-9)
	assert.InDelta(t, (399.0/398.0-1)*100, fv.Value("pct_change_1"), 1e-9)
	assert.Greater(t, fv.Value("ema_12"), fv.Value("ema_26"))
	assert.Greater(t, fv.Value("trend_strength"), 0.0)
	assert.Greater(t, fv.Value(ATRName), 0.0)

	for i, v := range fv.Values() {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %s is not finite", fv.Names()[i])
	}
}

func TestRSIBounded(t *testing.T) {
	b := newDefaultBuilder(t)

	for _, candles := range [][]models.Candle{rampCandles(100, 10), waveCandles(100)} {
		fv, err := b.Build(candles, 99)
		require.NoError(t, err)
		rsi := fv.Value("rsi_14")
		assert.GreaterOrEqual(t, rsi, 0.0)
		assert.LessOrEqual(t, rsi, 100.0)
	}

	flat := rampCandles(100, 10)
	for i := range flat {
		flat[i].Close = 42
		flat[i].Open = 42
		flat[i].High = 42
		flat[i].Low = 42
	}
	fv, err := b.Build(flat, 99)
	require.NoError(t, err)
	assert.Equal(t, 50.0, fv.Value("rsi_14"))
	assert.Equal(t, 0.5, fv.Value("bb_pct_b_20"))
}

func TestSchemaIDTracksWindows(t *testing.T) {
	cfg := DefaultConfig()
	other := DefaultConfig()
	other.BollingerK = 2.5

	assert.Equal(t, cfg.Names(), other.Names())
	assert.NotEqual(t, cfg.SchemaID(), other.SchemaID())

	other = DefaultConfig()
	other.SMAPeriods = []int{10, 20, 100}
	assert.NotEqual(t, cfg.Names(), other.Names())
	assert.Equal(t, 100, other.Lookback())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EMAFast = 30
	_, err := NewBuilder(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.SMAPeriods = nil
	_, err = NewBuilder(cfg)
	assert.Error(t, err)
}

package features

import (
	"fmt"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// Builder turns a candle window into a FeatureVector with a fixed, ordered schema.
// It is pure: the same candles and index always give the same vector.
type Builder struct {
	cfg      Config
	names    []string
	schemaID string
	lookback int
}

func NewBuilder(cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Builder{
		cfg:      cfg,
		names:    cfg.Names(),
		schemaID: cfg.SchemaID(),
		lookback: cfg.Lookback(),
	}, nil
}

func (b *Builder) Config() Config { return b.cfg }

// Lookback is the number of candles required before the as-of candle.
func (b *Builder) Lookback() int { return b.lookback }

func (b *Builder) SchemaID() string { return b.schemaID }

// Schema returns a copy of the ordered feature names.
func (b *Builder) Schema() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Build computes features at candles[asOfIndex] using only that candle and the ones before it.
func (b *Builder) Build(candles []models.Candle, asOfIndex int) (models.FeatureVector, error) {
	if asOfIndex >= len(candles) {
		return models.FeatureVector{}, fmt.Errorf("build features: as-of index %d out of range (%d candles)", asOfIndex, len(candles))
	}
	if asOfIndex < b.lookback {
		return models.FeatureVector{}, fmt.Errorf("%w: need %d candles before index %d", domsvc.ErrInsufficientHistory, b.lookback, asOfIndex)
	}
	window := candles[asOfIndex-b.lookback : asOfIndex+1]
	values := b.compute(window)
	return models.NewFeatureVector(b.schemaID, b.names, values), nil
}

// FromState builds the vector at the newest candle of s.
func (b *Builder) FromState(s State) (models.FeatureVector, error) {
	return b.Build(s.candles, len(s.candles)-1)
}

func (b *Builder) compute(window []models.Candle) []float64 {
	n := len(window)
	cur := window[n-1]
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range window {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	out := make([]float64, 0, len(b.names))
	out = append(out, cur.Open, cur.High, cur.Low, cur.Close, cur.Volume)

	for _, p := range b.cfg.SMAPeriods {
		out = append(out, finite(lastSMA(closes, p), cur.Close))
	}

	emaFast := finite(last(emaSeries(closes, b.cfg.EMAFast)), cur.Close)
	emaSlow := finite(last(emaSeries(closes, b.cfg.EMASlow)), cur.Close)
	out = append(out, emaFast, emaSlow)

	line, sig, hist := macdLast(closes, b.cfg.EMAFast, b.cfg.EMASlow, b.cfg.MACDSignal)
	out = append(out, finite(line, 0), finite(sig, 0), finite(hist, 0))

	out = append(out, rsiLast(closes, b.cfg.RSIPeriod))

	pctB, width := bollinger(closes, b.cfg.BollingerPeriod, b.cfg.BollingerK)
	out = append(out, finite(pctB, 0.5), finite(width, 0))

	out = append(out, finite(atrLast(highs, lows, closes), 0))

	trendStrength := 0.0
	if emaSlow != 0 {
		trendStrength = (emaFast - emaSlow) / emaSlow * 100
	}
	out = append(out, finite(trendStrength, 0))

	volRatio := 1.0
	if avg := lastSMA(volumes, b.cfg.VolumePeriod); avg > 0 {
		volRatio = cur.Volume / avg
	}
	out = append(out, finite(volRatio, 1))

	returns := ComputeLogReturns(window[n-b.cfg.RealizedVolPeriod-1:])
	out = append(out, finite(RealizedVolatility(returns, b.cfg.RealizedVolPeriod, 1), 0))

	for k := 1; k <= b.cfg.Lags; k++ {
		out = append(out, closes[n-1-k])
	}
	for k := 1; k <= b.cfg.Lags; k++ {
		out = append(out, volumes[n-1-k])
	}

	for _, p := range []int{b.cfg.ChangeShort, b.cfg.ChangeMedium, b.cfg.ChangeLong} {
		out = append(out, PctChange(closes[n-1-p], cur.Close))
	}
	return out
}

package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"gonum.org/v1/gonum/stat"
)

// lastSMA returns the most recent simple moving average, NaN when the series is too short.
func lastSMA(values []float64, period int) float64 {
	sma := trend.NewSmaWithPeriod[float64](period)
	return last(helper.ChanToSlice(sma.Compute(helper.SliceToChan(values))))
}

func emaSeries(values []float64, period int) []float64 {
	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(values)))
}

// macdLast computes the MACD line, signal and histogram at the last bar.
// The line is built from two aligned EMA tails so each pipeline has one consumer.
func macdLast(values []float64, fast, slow, signal int) (line, sig, hist float64) {
	f := emaSeries(values, fast)
	s := emaSeries(values, slow)
	n := min(len(f), len(s))
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	macd := make([]float64, n)
	for i := 0; i < n; i++ {
		macd[i] = f[len(f)-n+i] - s[len(s)-n+i]
	}
	line = macd[n-1]
	sig = last(emaSeries(macd, signal))
	return line, sig, line - sig
}

// rsiLast returns RSI in [0,100]. A flat window (no gains, no losses) maps to the neutral 50.
func rsiLast(values []float64, period int) float64 {
	rsi := momentum.NewRsiWithPeriod[float64](period)
	v := last(helper.ChanToSlice(rsi.Compute(helper.SliceToChan(values))))
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

func atrLast(highs, lows, closes []float64) float64 {
	atr := volatility.NewAtr[float64]()
	return last(helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	)))
}

// bollinger returns %B and relative band width over the trailing period.
func bollinger(values []float64, period int, k float64) (pctB, width float64) {
	if len(values) < period {
		return math.NaN(), math.NaN()
	}
	mean, std := stat.PopMeanStdDev(values[len(values)-period:], nil)
	upper := mean + k*std
	lower := mean - k*std
	c := values[len(values)-1]
	if upper == lower {
		pctB = 0.5
	} else {
		pctB = (c - lower) / (upper - lower)
	}
	if mean != 0 {
		width = (upper - lower) / mean
	}
	return pctB, width
}

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return xs[len(xs)-1]
}

// finite maps NaN and infinities to fallback.
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

package repository

import "time"

// Timeframes lists every supported timeframe in ascending resolution.
var Timeframes = []Timeframe{TF1h, TF4h, TF1d, TF1w, TF1M}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1h, TF4h, TF1d, TF1w, TF1M:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TF1h }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Advance moves t forward by n buckets. Months use calendar arithmetic.
func (tf Timeframe) Advance(t time.Time, n int) time.Time {
	switch tf {
	case TF4h:
		return t.Add(time.Duration(n) * 4 * time.Hour)
	case TF1d:
		return t.AddDate(0, 0, n)
	case TF1w:
		return t.AddDate(0, 0, 7*n)
	case TF1M:
		return t.AddDate(0, n, 0)
	default:
		return t.Add(time.Duration(n) * time.Hour)
	}
}

// Approx returns the nominal bucket length (30 days for a month).
func (tf Timeframe) Approx() time.Duration {
	switch tf {
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	case TF1w:
		return 7 * 24 * time.Hour
	case TF1M:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// BarsPerYear returns the approximate number of bars per year.
func (tf Timeframe) BarsPerYear() float64 {
	switch tf {
	case TF4h:
		return 365 * 6
	case TF1d:
		return 365
	case TF1w:
		return 52
	case TF1M:
		return 12
	default:
		return 365 * 24
	}
}

package features

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// atrPeriod is the period of volatility.NewAtr in the indicator library.
const atrPeriod = 14

// Config holds every window length used by the Builder. Window lengths are part of the schema.
type Config struct {
	SMAPeriods        []int   `json:"sma_periods"`
	EMAFast           int     `json:"ema_fast"`
	EMASlow           int     `json:"ema_slow"`
	MACDSignal        int     `json:"macd_signal"`
	RSIPeriod         int     `json:"rsi_period"`
	BollingerPeriod   int     `json:"bollinger_period"`
	BollingerK        float64 `json:"bollinger_k"`
	VolumePeriod      int     `json:"volume_period"`
	RealizedVolPeriod int     `json:"realized_vol_period"`
	Lags              int     `json:"lags"`
	ChangeShort       int     `json:"change_short"`
	ChangeMedium      int     `json:"change_medium"`
	ChangeLong        int     `json:"change_long"`
}

// DefaultConfig returns the standard indicator set with a lookback of 50 candles.
func DefaultConfig() Config {
	return Config{
		SMAPeriods:        []int{10, 20, 50},
		EMAFast:           12,
		EMASlow:           26,
		MACDSignal:        9,
		RSIPeriod:         14,
		BollingerPeriod:   20,
		BollingerK:        2,
		VolumePeriod:      20,
		RealizedVolPeriod: 20,
		Lags:              5,
		ChangeShort:       1,
		ChangeMedium:      7,
		ChangeLong:        30,
	}
}

// Validate rejects non-positive windows and an inverted EMA pair.
func (c Config) Validate() error {
	if len(c.SMAPeriods) == 0 {
		return fmt.Errorf("features: at least one sma period is required")
	}
	for _, p := range c.SMAPeriods {
		if p < 1 {
			return fmt.Errorf("features: sma period must be >= 1, got %d", p)
		}
	}
	checks := []struct {
		name string
		v    int
		min  int
	}{
		{"ema_fast", c.EMAFast, 1},
		{"ema_slow", c.EMASlow, 2},
		{"macd_signal", c.MACDSignal, 1},
		{"rsi_period", c.RSIPeriod, 2},
		{"bollinger_period", c.BollingerPeriod, 2},
		{"volume_period", c.VolumePeriod, 1},
		{"realized_vol_period", c.RealizedVolPeriod, 2},
		{"lags", c.Lags, 1},
		{"change_short", c.ChangeShort, 1},
		{"change_medium", c.ChangeMedium, 1},
		{"change_long", c.ChangeLong, 1},
	}
	for _, ch := range checks {
		if ch.v < ch.min {
			return fmt.Errorf("features: %s must be >= %d, got %d", ch.name, ch.min, ch.v)
		}
	}
	if c.EMAFast >= c.EMASlow {
		return fmt.Errorf("features: ema_fast (%d) must be < ema_slow (%d)", c.EMAFast, c.EMASlow)
	}
	if c.BollingerK <= 0 {
		return fmt.Errorf("features: bollinger_k must be > 0")
	}
	return nil
}

// Lookback returns W, the number of candles required before the as-of candle.
func (c Config) Lookback() int {
	w := max(c.Lags, c.EMASlow+c.MACDSignal, c.RSIPeriod+1, c.BollingerPeriod, atrPeriod+1,
		c.VolumePeriod, c.RealizedVolPeriod+1, c.ChangeShort, c.ChangeMedium, c.ChangeLong)
	for _, p := range c.SMAPeriods {
		w = max(w, p)
	}
	return w
}

// Names returns the ordered feature schema.
func (c Config) Names() []string {
	names := []string{NameOpen, NameHigh, NameLow, NameClose, NameVolume}
	for _, p := range c.SMAPeriods {
		names = append(names, fmt.Sprintf("sma_%d", p))
	}
	names = append(names,
		fmt.Sprintf("ema_%d", c.EMAFast),
		fmt.Sprintf("ema_%d", c.EMASlow),
		"macd", "macd_signal", "macd_hist",
		fmt.Sprintf("rsi_%d", c.RSIPeriod),
		fmt.Sprintf("bb_pct_b_%d", c.BollingerPeriod),
		fmt.Sprintf("bb_width_%d", c.BollingerPeriod),
		ATRName,
		"trend_strength",
		fmt.Sprintf("volume_ratio_%d", c.VolumePeriod),
		fmt.Sprintf("realized_vol_%d", c.RealizedVolPeriod),
	)
	for k := 1; k <= c.Lags; k++ {
		names = append(names, CloseLagName(k))
	}
	for k := 1; k <= c.Lags; k++ {
		names = append(names, VolumeLagName(k))
	}
	names = append(names,
		fmt.Sprintf("pct_change_%d", c.ChangeShort),
		fmt.Sprintf("pct_change_%d", c.ChangeMedium),
		fmt.Sprintf("pct_change_%d", c.ChangeLong),
	)
	return names
}

// SchemaID fingerprints the ordered names together with every window parameter.
func (c Config) SchemaID() string {
	b, _ := json.Marshal(struct {
		Names  []string `json:"names"`
		Config Config   `json:"config"`
	}{c.Names(), c})
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum[:8])
}

const (
	NameOpen   = "open"
	NameHigh   = "high"
	NameLow    = "low"
	NameClose  = "close"
	NameVolume = "volume"
)

// ATRName is the feature holding the average true range used for predicted high/low spreads.
var ATRName = fmt.Sprintf("atr_%d", atrPeriod)

func CloseLagName(k int) string  { return fmt.Sprintf("close_lag_%d", k) }
func VolumeLagName(k int) string { return fmt.Sprintf("volume_lag_%d", k) }

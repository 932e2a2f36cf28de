package models

import "time"

// Candle represents an OHLCV record for feature engineering, training and forecasting.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// CandleClosedEvent is emitted upstream whenever a candle bucket is finalized.
type CandleClosedEvent struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"tf"`
	Bucket    time.Time `json:"bucket"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

package models

import "time"

// Direction is the sign of a predicted move relative to the previous close.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// ForecastStep is one predicted future candle.
type ForecastStep struct {
	StepNumber int
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Confidence float64
	Direction  Direction
}

// Forecast is the immutable result of one forecast run.
// It carries no wall-clock data so identical inputs give identical values.
type Forecast struct {
	Symbol        string
	Timeframe     string
	Mode          string
	AsOf          time.Time
	Steps         []ForecastStep
	AvgConfidence float64
	Direction     Direction
	Drivers       []string
	ModelVersion  string
}

// LastClose returns the close of the final step, or 0 for an empty forecast.
func (f *Forecast) LastClose() float64 {
	if f == nil || len(f.Steps) == 0 {
		return 0
	}
	return f.Steps[len(f.Steps)-1].Close
}

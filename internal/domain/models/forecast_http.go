package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.
// Steps left at zero take the server's configured default; the upper bound is
// checked by the handler against forecast.max_steps.

type ForecastRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"timeframe"`
	Steps  int    `query:"steps" json:"steps" validate:"gte=0"`
	Mode   string `query:"mode" json:"mode" default:"iterative" validate:"mode"`
	Fresh  bool   `query:"fresh" json:"fresh"`
}

type BatchForecastRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"required"`
	TF      string `query:"tf" json:"tf" default:"1h" validate:"timeframe"`
	Steps   int    `query:"steps" json:"steps" validate:"gte=0"`
	Mode    string `query:"mode" json:"mode" default:"iterative" validate:"mode"`
}

type FeaturesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"timeframe"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,symbol"`
	TF     string `query:"tf" json:"tf" default:"1h" validate:"timeframe"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type ModelsRequest struct {
	TF string `query:"tf" json:"tf" default:"1h" validate:"timeframe"`
}

type TrainRequest struct {
	TF       string   `json:"tf" default:"1h" validate:"timeframe"`
	Symbols  []string `json:"symbols" validate:"omitempty,dive,symbol"`
	Families []string `json:"families" validate:"omitempty,dive,family"`
}

// ForecastStepPayload is the transport form of a ForecastStep.
type ForecastStepPayload struct {
	Step       int             `json:"step"`
	Timestamp  time.Time       `json:"timestamp"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Confidence float64         `json:"confidence"`
	Direction  string          `json:"direction"`
}

// ForecastPayload is the transport form of a Forecast shared by HTTP, Kafka, websocket and cache.
type ForecastPayload struct {
	ID            string                `json:"id"`
	Symbol        string                `json:"symbol"`
	Timeframe     string                `json:"timeframe"`
	Mode          string                `json:"mode"`
	AsOf          time.Time             `json:"as_of"`
	GeneratedAt   time.Time             `json:"generated_at"`
	Steps         []ForecastStepPayload `json:"steps"`
	AvgConfidence float64               `json:"avg_confidence"`
	Direction     string                `json:"direction"`
	Drivers       []string              `json:"drivers"`
	ModelVersion  string                `json:"model_version"`
}

const pricePlaces = 8

// NewForecastPayload converts a forecast into its transport form, rounding prices.
func NewForecastPayload(id string, f *Forecast, generatedAt time.Time) ForecastPayload {
	steps := make([]ForecastStepPayload, len(f.Steps))
	for i, s := range f.Steps {
		steps[i] = ForecastStepPayload{
			Step:       s.StepNumber,
			Timestamp:  s.Timestamp,
			Open:       decimal.NewFromFloat(s.Open).Round(pricePlaces),
			High:       decimal.NewFromFloat(s.High).Round(pricePlaces),
			Low:        decimal.NewFromFloat(s.Low).Round(pricePlaces),
			Close:      decimal.NewFromFloat(s.Close).Round(pricePlaces),
			Confidence: s.Confidence,
			Direction:  string(s.Direction),
		}
	}
	drivers := f.Drivers
	if drivers == nil {
		drivers = []string{}
	}
	return ForecastPayload{
		ID:            id,
		Symbol:        f.Symbol,
		Timeframe:     f.Timeframe,
		Mode:          f.Mode,
		AsOf:          f.AsOf,
		GeneratedAt:   generatedAt,
		Steps:         steps,
		AvgConfidence: f.AvgConfidence,
		Direction:     string(f.Direction),
		Drivers:       drivers,
		ModelVersion:  f.ModelVersion,
	}
}

// BatchForecastResult groups independent per-symbol forecasts.
type BatchForecastResult struct {
	Timeframe string                     `json:"timeframe"`
	Forecasts map[string]ForecastPayload `json:"forecasts"`
	Errors    map[string]string          `json:"errors,omitempty"`
}

package cli

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"FinCast/internal/domain/models"
	"FinCast/internal/usecase"
)

func TestRenderForecast(t *testing.T) {
	p := &models.ForecastPayload{
		Symbol:        "BTCUSDT",
		Timeframe:     "1h",
		Mode:          "iterative",
		Direction:     "up",
		AvgConfidence: 0.8,
		Drivers:       []string{"rsi_14", "close_lag_1"},
		ModelVersion:  "linear@v1:1.00",
		Steps: []models.ForecastStepPayload{{
			Step:       1,
			Timestamp:  time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
			Open:       decimal.NewFromInt(100),
			High:       decimal.NewFromFloat(101.5),
			Low:        decimal.NewFromFloat(99.5),
			Close:      decimal.NewFromInt(101),
			Confidence: 0.85,
			Direction:  "up",
		}},
	}
	out := renderForecast(p)
	assert.Contains(t, out, "BTCUSDT 1h (iterative)")
	assert.Contains(t, out, "101.50")
	assert.Contains(t, out, "0.85")
	assert.Contains(t, out, "rsi_14, close_lag_1")
	assert.Contains(t, out, "linear@v1:1.00")
}

func TestRenderTrainReport(t *testing.T) {
	r := &usecase.TrainReport{
		Timeframe: "1h",
		Version:   "20240101T000000Z",
		Symbols:   []string{"BTCUSDT"},
		Skipped:   []string{"NEWCOIN"},
		Models: []models.ModelMeta{{
			Family:  models.FamilyLinear,
			Version: "20240101T000000Z",
			Metrics: models.ModelMetrics{MAE: 0.0123, DirectionalAccuracy: 0.55, TrainSamples: 400, HoldoutSamples: 100},
		}},
		Duration: 1500 * time.Millisecond,
	}
	out := renderTrainReport(r)
	assert.Contains(t, out, "linear")
	assert.Contains(t, out, "55.0%")
	assert.Contains(t, out, "skipped: NEWCOIN")
	assert.Contains(t, out, "took 1.5s")
}

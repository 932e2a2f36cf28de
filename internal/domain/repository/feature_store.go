package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1h Timeframe = "1h"
	TF4h Timeframe = "4h"
	TF1d Timeframe = "1d"
	TF1w Timeframe = "1w"
	TF1M Timeframe = "1M"
)

// FeatureStore provides read-only access to candles for forecasting and training.
type FeatureStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.Candle, error)
}

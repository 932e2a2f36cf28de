package repository

import (
	"context"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
)

// ModelStore persists and loads trained model artifacts.
type ModelStore interface {
	// Save persists every artifact or none of them.
	Save(ctx context.Context, ms ...service.Model) error
	Load(ctx context.Context, tf Timeframe, family models.ModelFamily) (service.Model, error)
	List(ctx context.Context, tf Timeframe) ([]models.ModelMeta, error)
}

// ForecastStore keeps a history of generated forecasts.
type ForecastStore interface {
	Init(ctx context.Context) error
	StoreForecast(ctx context.Context, p models.ForecastPayload) error
	Health(ctx context.Context) error
}

// ForecastPublisher pushes generated forecasts to downstream consumers.
type ForecastPublisher interface {
	Publish(ctx context.Context, p models.ForecastPayload) error
	Close() error
}

type Metrics interface {
	RecordForecast(symbol, tf, mode string, steps int)
	RecordConfidence(symbol, tf string, avg float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordTraining(tf, family string, mae, accuracy float64)
}

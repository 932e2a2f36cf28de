package repository

import (
	"context"
	"fmt"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
)

// CHForecastStore keeps a row per forecast step in ClickHouse.
type CHForecastStore struct {
	client   *pkgch.Client
	database string
}

// NewCHForecastStore creates ClickHouse forecast history storage.
func NewCHForecastStore(ch *pkgch.Client, database string) domrepo.ForecastStore {
	return &CHForecastStore{client: ch, database: database}
}

// Init creates the candle and forecast tables if missing.
func (s *CHForecastStore) Init(ctx context.Context) error {
	return s.client.InitSchema(ctx, SchemaStatements(s.database))
}

func (s *CHForecastStore) StoreForecast(ctx context.Context, p models.ForecastPayload) error {
	if len(p.Steps) == 0 {
		return nil
	}
	q := fmt.Sprintf("INSERT INTO %s.forecasts (%s)", s.database, forecastColumns)
	if err := s.client.InsertBatch(ctx, q, forecastRows(p)); err != nil {
		return fmt.Errorf("store forecast %s: %w", p.ID, err)
	}
	return nil
}

func (s *CHForecastStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

const forecastColumns = "id, symbol, timeframe, mode, model_version, as_of, generated_at, step, ts, open, high, low, close, confidence, direction, avg_confidence, drivers"

// forecastRows flattens p into one row per step.
func forecastRows(p models.ForecastPayload) [][]any {
	rows := make([][]any, 0, len(p.Steps))
	for _, st := range p.Steps {
		rows = append(rows, []any{
			p.ID,
			p.Symbol,
			p.Timeframe,
			p.Mode,
			p.ModelVersion,
			p.AsOf,
			p.GeneratedAt,
			uint16(st.Step),
			st.Timestamp,
			st.Open,
			st.High,
			st.Low,
			st.Close,
			st.Confidence,
			st.Direction,
			p.AvgConfidence,
			p.Drivers,
		})
	}
	return rows
}

package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/forecast"
)

const maxBatchConcurrency = 8

type ForecastManyParams struct {
	Symbols   []string
	Timeframe domrepo.Timeframe
	Steps     int
	Mode      forecast.Mode
}

// ForecastMany runs independent forecasts concurrently. A failing symbol is reported in
// Errors and never affects the others.
func (uc *ForecastUseCase) ForecastMany(ctx context.Context, p ForecastManyParams) (*models.BatchForecastResult, error) {
	if len(p.Symbols) == 0 {
		return nil, fmt.Errorf("symbols required")
	}

	res := &models.BatchForecastResult{
		Timeframe: string(p.Timeframe),
		Forecasts: make(map[string]models.ForecastPayload, len(p.Symbols)),
		Errors:    map[string]string{},
	}

	type item struct {
		symbol string
		val    *models.ForecastPayload
		err    error
	}
	ch := make(chan item, len(p.Symbols))
	sem := make(chan struct{}, maxBatchConcurrency)
	var wg sync.WaitGroup

	seen := make(map[string]struct{}, len(p.Symbols))
	for _, sym := range p.Symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			v, err := uc.Forecast(ctx, ForecastParams{Symbol: sym, Timeframe: p.Timeframe, Steps: p.Steps, Mode: p.Mode})
			ch <- item{sym, v, err}
		}(sym)
	}

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.symbol] = it.err.Error()
			continue
		}
		res.Forecasts[it.symbol] = *it.val
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

// FeaturesResult is the feature vector at the newest stored candle.
type FeaturesResult struct {
	Symbol    string             `json:"symbol"`
	Timeframe string             `json:"timeframe"`
	AsOf      time.Time          `json:"as_of"`
	SchemaID  string             `json:"schema_id"`
	Names     []string           `json:"names"`
	Values    map[string]float64 `json:"values"`
}

// Features computes the current feature vector for symbol.
func (uc *ForecastUseCase) Features(ctx context.Context, symbol string, tf domrepo.Timeframe) (*FeaturesResult, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	ctx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	b := uc.forecaster.Builder()
	candles, err := uc.store.GetLatestNCandles(ctx, symbol, b.Lookback()+1, tf)
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	fv, err := b.Build(candles, len(candles)-1)
	if err != nil {
		return nil, err
	}
	return &FeaturesResult{
		Symbol:    symbol,
		Timeframe: string(tf),
		AsOf:      candles[len(candles)-1].Bucket,
		SchemaID:  fv.SchemaID,
		Names:     fv.Names(),
		Values:    fv.Map(),
	}, nil
}

package usecase

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

// CandlesUseCase provides business logic for retrieving candles.
type CandlesUseCase struct {
	store domrepo.FeatureStore
}

func NewCandlesUseCase(store domrepo.FeatureStore) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

// GetCandles returns candles in [From, To]. A zero range returns the latest Limit candles.
func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	if p.Limit <= 0 {
		p.Limit = 500
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	var (
		candles []models.Candle
		err     error
	)
	if p.From.IsZero() && p.To.IsZero() {
		candles, err = uc.store.GetLatestNCandles(ctx, p.Symbol, p.Limit, p.Timeframe)
	} else {
		candles, err = uc.store.GetCandles(ctx, p.Symbol, p.From, p.To, p.Timeframe)
	}
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) > p.Limit {
		candles = candles[len(candles)-p.Limit:]
	}

	res := &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		From:      p.From,
		To:        p.To,
		Count:     len(candles),
		Candles:   candles,
	}
	if len(candles) > 0 {
		res.From = candles[0].Bucket
		res.To = candles[len(candles)-1].Bucket
	}
	return res, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse.
type CHFeatureStore struct {
	client   *pkgch.Client
	database string
	l        *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, database string) *CHFeatureStore {
	return &CHFeatureStore{client: ch, database: database}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHFeatureStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	var out []models.Candle
	err = s.client.Query(ctx, fmt.Sprintf(qtpl, table), func(rows *sql.Rows) (err error) {
		out, err = scanCandles(rows, 1024)
		return err
	}, symbol, from, to)
	if err != nil {
		s.logErr("get_candles", table, symbol, tf, err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	s.logOK("get_candles", table, symbol, tf, len(out), start)
	return out, nil
}

// GetLatestNCandles returns up to n most recent candles in ascending bucket order.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	var tmp []models.Candle
	err = s.client.Query(ctx, fmt.Sprintf(qtpl, table), func(rows *sql.Rows) (err error) {
		tmp, err = scanCandles(rows, n)
		return err
	}, symbol, n)
	if err != nil {
		s.logErr("latest_candles", table, symbol, tf, err)
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.logOK("latest_candles", table, symbol, tf, len(tmp), start)
	return tmp, nil
}

func scanCandles(rows *sql.Rows, capHint int) ([]models.Candle, error) {
	out := make([]models.Candle, 0, capHint)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHFeatureStore) logErr(op, table, symbol string, tf domrepo.Timeframe, err error) {
	if s.l == nil {
		return
	}
	s.l.Error("clickhouse "+op+" error",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Error(err),
	)
}

func (s *CHFeatureStore) logOK(op, table, symbol string, tf domrepo.Timeframe, rows int, start time.Time) {
	if s.l == nil {
		return
	}
	s.l.Debug("clickhouse "+op+" ok",
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", rows),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

func tableForTF(database string, tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", database, tableSuffix(tf)), nil
}

// tableSuffix keeps table names case-insensitive safe: 1M (month) must not collide with 1m.
func tableSuffix(tf domrepo.Timeframe) string {
	if tf == domrepo.TF1M {
		return "1mo"
	}
	return string(tf)
}

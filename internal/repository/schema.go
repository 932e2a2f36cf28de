package repository

import (
	"fmt"

	domrepo "FinCast/internal/domain/repository"
)

// SchemaStatements returns the idempotent DDL for candle tables and forecast history.
func SchemaStatements(database string) []string {
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range domrepo.Timeframes {
		table, _ := tableForTF(database, tf)
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    bucket DateTime,
    symbol LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    vol Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, bucket)`, table))
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.forecasts (
    id UUID,
    symbol LowCardinality(String),
    timeframe LowCardinality(String),
    mode LowCardinality(String),
    model_version String,
    as_of DateTime,
    generated_at DateTime64(3),
    step UInt16,
    ts DateTime,
    open Decimal64(8),
    high Decimal64(8),
    low Decimal64(8),
    close Decimal64(8),
    confidence Float64,
    direction LowCardinality(String),
    avg_confidence Float64,
    drivers Array(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(generated_at)
ORDER BY (symbol, timeframe, generated_at, step)
TTL toDateTime(generated_at) + INTERVAL 90 DAY`, database))
	return stmts
}

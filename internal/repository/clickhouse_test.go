package repository

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
)

func TestTableForTF(t *testing.T) {
	got, err := tableForTF("fincast", domrepo.TF4h)
	require.NoError(t, err)
	assert.Equal(t, "fincast.candles_4h", got)

	got, err = tableForTF("fincast", domrepo.TF1M)
	require.NoError(t, err)
	assert.Equal(t, "fincast.candles_1mo", got)

	_, err = tableForTF("fincast", domrepo.Timeframe("1m"))
	assert.Error(t, err)
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements("fincast")
	require.Len(t, stmts, 1+len(domrepo.Timeframes)+1)
	assert.Equal(t, "CREATE DATABASE IF NOT EXISTS fincast", stmts[0])
	assert.Contains(t, stmts[len(stmts)-1], "fincast.forecasts")
}

func TestForecastRows(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := models.ForecastPayload{
		ID:        "6f1c",
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Mode:      "iterative",
		AsOf:      ts,
		Steps: []models.ForecastStepPayload{
			{Step: 1, Timestamp: ts.Add(time.Hour), Close: decimal.NewFromInt(101)},
			{Step: 2, Timestamp: ts.Add(2 * time.Hour), Close: decimal.NewFromInt(102)},
		},
		Drivers: []string{"rsi_14"},
	}

	rows := forecastRows(p)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], len(strings.Split(forecastColumns, ",")))
	assert.Equal(t, uint16(2), rows[1][7])
	assert.Equal(t, decimal.NewFromInt(102), rows[1][12])
}

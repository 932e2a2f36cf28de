package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(DefaultConfig(), nil)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/forecasts"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubDeliversMatchingForecasts(t *testing.T) {
	hub, url := startHub(t)
	btc := dial(t, url+"?symbols=btcusdt&tf=1h")
	all := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(models.ForecastPayload{ID: "a", Symbol: "ETHUSDT", Timeframe: "1h"})
	hub.Broadcast(models.ForecastPayload{ID: "b", Symbol: "BTCUSDT", Timeframe: "1h"})

	read := func(conn *websocket.Conn) models.ForecastPayload {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var p models.ForecastPayload
		require.NoError(t, json.Unmarshal(msg, &p))
		return p
	}

	assert.Equal(t, "b", read(btc).ID)
	assert.Equal(t, "a", read(all).ID)
	assert.Equal(t, "b", read(all).ID)
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClientFilter(t *testing.T) {
	c := &client{symbols: map[string]struct{}{"BTCUSDT": {}}, timeframe: "4h"}
	assert.True(t, c.wants(models.ForecastPayload{Symbol: "BTCUSDT", Timeframe: "4h"}))
	assert.False(t, c.wants(models.ForecastPayload{Symbol: "BTCUSDT", Timeframe: "1h"}))
	assert.False(t, c.wants(models.ForecastPayload{Symbol: "ETHUSDT", Timeframe: "4h"}))
}

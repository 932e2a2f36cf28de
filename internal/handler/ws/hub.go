package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	applogger "FinCast/pkg/logger"
	xutil "FinCast/pkg/util"
)

// Config tunes websocket sessions.
type Config struct {
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
	SendBuffer   int
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		ReadTimeout:  70 * time.Second,
		SendBuffer:   32,
	}
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	symbols   map[string]struct{}
	timeframe string
	closeOnce sync.Once
}

func (c *client) wants(p models.ForecastPayload) bool {
	if c.timeframe != "" && c.timeframe != p.Timeframe {
		return false
	}
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[p.Symbol]
	return ok
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub pushes generated forecasts to subscribed websocket clients.
// Subscribers filter with ?symbols=BTCUSDT,ETHUSDT&tf=1h; slow clients are dropped.
type Hub struct {
	upgrader websocket.Upgrader
	cfg      Config
	l        *applogger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

func NewHub(cfg Config, l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	if cfg.SendBuffer <= 0 {
		cfg = DefaultConfig()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg:     cfg,
		l:       l,
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/forecasts", h.Serve)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes p once and queues it for every matching client.
func (h *Hub) Broadcast(p models.ForecastPayload) {
	msg, err := json.Marshal(p)
	if err != nil {
		h.l.Error("ws encode forecast", applogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(p) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.l.Warn("ws client too slow, dropping", applogger.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

// Serve upgrades the request and blocks until the client disconnects.
func (h *Hub) Serve(ctx echo.Context) error {
	conn, err := h.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		h.l.Warn("ws upgrade failed", applogger.Error(err))
		return nil
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, h.cfg.SendBuffer),
		symbols:   make(map[string]struct{}),
		timeframe: ctx.QueryParam("tf"),
	}
	for _, s := range xutil.SplitSymbols(ctx.QueryParam("symbols")) {
		c.symbols[s] = struct{}{}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.l.Debug("ws client connected", applogger.String("remote", conn.RemoteAddr().String()), applogger.Int("clients", h.Count()))

	go h.writeLoop(c)
	h.readLoop(c)
	h.remove(c)
	return nil
}

// readLoop discards client frames and keeps the read deadline fresh on pongs.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.l.Debug("ws read error", applogger.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

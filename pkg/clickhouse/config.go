package clickhouse

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds connection, pool and per-session settings.
type ClientConfig struct {
	Addrs           []string
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // applied to InsertBatch; the driver has no write deadline
	UseHTTP         bool
	Compression     string // lz4, zstd, gzip, none; empty picks per protocol
	Settings        map[string]any
}

func defaultConfig() *ClientConfig {
	return &ClientConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		Settings:        map[string]any{},
	}
}

func (c *ClientConfig) validate() error {
	if len(c.Addrs) == 0 {
		return fmt.Errorf("host is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns && c.MaxOpenConns > 0 {
		return fmt.Errorf("max idle conns %d exceeds max open conns %d", c.MaxIdleConns, c.MaxOpenConns)
	}
	if _, ok := compressionMethods[strings.ToLower(c.Compression)]; !ok {
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	return nil
}

var compressionMethods = map[string]ch.CompressionMethod{
	"":     ch.CompressionLZ4,
	"lz4":  ch.CompressionLZ4,
	"zstd": ch.CompressionZSTD,
	"gzip": ch.CompressionGZIP,
	"none": ch.CompressionNone,
}

// WithAddr adds a server. Repeat it for a replicated cluster; the driver fails over in order.
func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		if host == "" {
			return
		}
		if port <= 0 {
			port = 9000
		}
		c.Addrs = append(c.Addrs, net.JoinHostPort(host, strconv.Itoa(port)))
	}
}

func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithPool sizes the database/sql pool. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
		if maxLifetime > 0 {
			c.ConnMaxLifetime = maxLifetime
		}
	}
}

func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout = dial
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.UseHTTP = useHTTP
	}
}

func WithCompression(method string) ClientOption {
	return func(c *ClientConfig) {
		c.Compression = method
	}
}

// WithSetting sets a server-side setting for every session.
func WithSetting(key string, value any) ClientOption {
	return func(c *ClientConfig) {
		c.Settings[key] = value
	}
}

// WithAsyncInsert lets the server buffer forecast inserts.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		if !enabled {
			return
		}
		c.Settings["async_insert"] = 1
		if wait {
			c.Settings["wait_for_async_insert"] = 1
		}
	}
}

// WithMaxExecutionTime caps server-side query time, in whole seconds.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.Settings["max_execution_time"] = int(d.Seconds())
		}
	}
}

package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client wraps a ClickHouse connection pool with traced helpers.
type Client struct {
	db           *sql.DB
	tracer       trace.Tracer
	dbName       string
	writeTimeout time.Duration
}

// NewClient opens a pool and pings it.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	db := ch.OpenDB(buildOptions(*cfg))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &Client{db: db, tracer: otel.Tracer("fincast/clickhouse"), dbName: cfg.Database, writeTimeout: cfg.WriteTimeout}, nil
}

func buildOptions(cfg ClientConfig) *ch.Options {
	o := &ch.Options{
		Addr: cfg.Addrs,
		Auth: ch.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Protocol:        ch.Native,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		Settings:        ch.Settings{},
	}
	for k, v := range cfg.Settings {
		o.Settings[k] = v
	}
	method := compressionMethods[strings.ToLower(cfg.Compression)]
	if cfg.UseHTTP {
		o.Protocol = ch.HTTP
		if cfg.Compression == "" {
			method = ch.CompressionGZIP
		}
	}
	if method != ch.CompressionNone {
		o.Compression = &ch.Compression{Method: method}
	}
	return o
}

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *Client) span(ctx context.Context, op, query string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "clickhouse."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "clickhouse"),
			attribute.String("db.name", c.dbName),
			attribute.String("db.statement", statementHead(query)),
		))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// statementHead keeps span attributes small for multi-row inserts.
func statementHead(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if i := strings.Index(q, " VALUES"); i > 0 {
		q = q[:i]
	}
	if len(q) > 256 {
		q = q[:256]
	}
	return q
}

// Exec runs a statement inside a client span.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	ctx, span := c.span(ctx, "exec", query)
	_, err := c.db.ExecContext(ctx, query, args...)
	endSpan(span, err)
	return err
}

// Query runs query inside a client span. The span ends when scan returns.
func (c *Client) Query(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) (err error) {
	ctx, span := c.span(ctx, "query", query)
	defer func() { endSpan(span, err) }()

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	if err = scan(rows); err != nil {
		return err
	}
	return rows.Err()
}

// InsertBatch sends rows as one block: ClickHouse batches every Exec of a prepared
// INSERT inside a transaction and flushes on Commit.
func (c *Client) InsertBatch(ctx context.Context, query string, rows [][]any) (err error) {
	if len(rows) == 0 {
		return nil
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	ctx, span := c.span(ctx, "insert_batch", query)
	span.SetAttributes(attribute.Int("db.rows", len(rows)))
	defer func() { endSpan(span, err) }()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err = stmt.ExecContext(ctx, r...); err != nil {
			return fmt.Errorf("append row %d: %w", i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// InitSchema ensures database and tables exist (idempotent).
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if err := c.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

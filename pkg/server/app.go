package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinCast/internal/handler/api"
	"FinCast/internal/handler/ws"
	mid "FinCast/internal/middleware"
	"FinCast/internal/repository"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/queue"
	"FinCast/pkg/tracing"

	"github.com/labstack/echo/v4"
)

// Components groups everything the application owns.
// Optional parts (Kafka, queue) are nil when disabled in config.
type Components struct {
	Logger    *applogger.Logger
	Forecasts *usecase.ForecastUseCase
	Trainer   *usecase.TrainUseCase
	Handler   *api.ForecastEchoHandler
	Hub       *ws.Hub
	Pipeline  *mid.CandlePipeline
	Candles   *usecase.KafkaCandlesHandler
	Consumer  *pkgkafka.Consumer
	Producer  *pkgkafka.Producer
	Queue     *queue.RedisQueue
	Models    *repository.CachedModelStore
	Cache     cache.Service
	CH        *pkgch.Client
	Observe   func(topic string, d time.Duration, err error)
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	c          Components
	l          *applogger.Logger
	httpServer *xhttp.Server
	traceStop  tracing.ShutdownFunc
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, c Components) *App {
	l := c.Logger
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, c: c, l: l}
}

func (a *App) Forecasts() *usecase.ForecastUseCase { return a.c.Forecasts }
func (a *App) Trainer() *usecase.TrainUseCase      { return a.c.Trainer }
func (a *App) Logger() *applogger.Logger           { return a.l }

type routes struct {
	service  string
	handlers []xhttp.Handler
}

func (r routes) RegisterRoutes(e *echo.Echo) {
	e.Use(tracing.Middleware(r.service))
	for _, h := range r.handlers {
		h.RegisterRoutes(e)
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop, err := tracing.Init(ctx, tracing.Config{
		Enabled:     a.cfg.Tracing.Enabled,
		Exporter:    a.cfg.Tracing.Exporter,
		Endpoint:    a.cfg.Tracing.Endpoint,
		ServiceName: a.cfg.Tracing.ServiceName,
		Environment: a.cfg.Environment,
		SampleRatio: a.cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}
	a.traceStop = stop

	if a.cfg.Logging.Collect && a.c.Producer != nil {
		a.l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   a.cfg.Logging.CollectInterval,
			CountThreshold: a.cfg.Logging.CollectThreshold,
			Topic:          a.cfg.Kafka.LogsTopic,
			Publisher:      a.c.Producer,
		})
	}

	hs := []xhttp.Handler{a.c.Handler}
	if a.c.Hub != nil {
		hs = append(hs, a.c.Hub)
	}
	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(routes{service: a.cfg.Tracing.ServiceName, handlers: hs},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
		xhttp.WithLogger(a.l),
	)

	go a.c.Handler.SweepLimiter(ctx, 5*time.Minute)

	if a.c.Pipeline != nil {
		go a.c.Pipeline.Start(ctx)
	}

	if a.c.Consumer != nil && a.c.Candles != nil {
		a.c.Consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.TracingHook{},
			pkgkafka.TimingHook{Observe: a.c.Observe},
		))
		a.c.Consumer.RegisterHandler(a.c.Candles)
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.c.Candles.Topic()))
	}

	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			a.l.Error("training queue start error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Shutdown stops every component in reverse start order. Safe to call without Run.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	a.l.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}
	if a.c.Hub != nil {
		a.c.Hub.Close()
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	if a.c.Pipeline != nil {
		a.c.Pipeline.Stop()
	}
	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.l.Warn("training queue stop error", applogger.Error(err))
		}
	}
	a.l.RemoveCollector()
	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.l.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.c.Models != nil {
		_ = a.c.Models.Close()
	}
	if a.c.Cache != nil {
		if err := a.c.Cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}
	if a.c.CH != nil {
		if err := a.c.CH.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.traceStop != nil {
		if err := a.traceStop(ctx); err != nil {
			a.l.Warn("tracing shutdown error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
	"FinCast/internal/handler/api"
	"FinCast/internal/handler/ws"
	mid "FinCast/internal/middleware"
	internalrepo "FinCast/internal/repository"
	svcmetrics "FinCast/internal/service/metrics"
	"FinCast/internal/services/analytics"
	"FinCast/internal/services/confidence"
	"FinCast/internal/services/features"
	"FinCast/internal/services/forecast"
	"FinCast/internal/services/regression"
	"FinCast/internal/services/training"
	"FinCast/internal/usecase"
	"FinCast/pkg/cache"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	pkgkafka "FinCast/pkg/kafka"
	applogger "FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/queue"
	"FinCast/pkg/server"
)

// ProvideLogger builds the application logger from the logging section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxIdleConns, cfg.ClickHouse.ConnMaxLifetime),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithClientID(cfg.Tracing.ServiceName),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the candle-closed consumer, or nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRedisClient connects to Redis, or returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache layers an in-process cache over Redis when available.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(10000), cache.WithMemoryCleanup(time.Minute))
	}
	return cache.NewLayeredCache(cache.NewRedisCacheFromClient(rc, cfg.Redis.Prefix), cache.WithLayeredMemorySize(2000))
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

func ProvideFeatureStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.FeatureStore {
	store := internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.Database)
	store.SetLogger(l)
	return store
}

func ProvideForecastStore(ch *pkgch.Client, cfg *config.Config) repository.ForecastStore {
	return internalrepo.NewCHForecastStore(ch, cfg.ClickHouse.Database)
}

// ProvideForecastPublisher publishes to Kafka, or drops forecasts when Kafka is disabled.
func ProvideForecastPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ForecastPublisher {
	if producer == nil {
		return internalrepo.NoopForecastPublisher{}
	}
	return internalrepo.NewKafkaForecastPublisher(producer, cfg.Kafka.ForecastTopic)
}

// ProvideModelStore stores artifacts on disk behind a decoded-model cache.
func ProvideModelStore(cfg *config.Config, l *applogger.Logger) *internalrepo.CachedModelStore {
	codec := regression.Codec{}
	if cfg.Analytics.PythonServiceURL != "" {
		codec.Remote = analytics.NewRemoteFactory(cfg.Analytics.PythonServiceURL, cfg.Analytics.Timeout, cfg.Analytics.MaxRetries)
	}
	return internalrepo.NewCachedModelStore(internalrepo.NewFileModelStore(cfg.Models.Dir, codec), cfg.Models.CacheTTL, l)
}

func ProvideFeatureBuilder(cfg *config.Config) (*features.Builder, error) {
	f := cfg.Features
	return features.NewBuilder(features.Config{
		SMAPeriods:        f.SMAPeriods,
		EMAFast:           f.EMAFast,
		EMASlow:           f.EMASlow,
		MACDSignal:        f.MACDSignal,
		RSIPeriod:         f.RSIPeriod,
		BollingerPeriod:   f.BollingerPeriod,
		BollingerK:        f.BollingerK,
		VolumePeriod:      f.VolumePeriod,
		RealizedVolPeriod: f.RealizedVolPeriod,
		Lags:              f.Lags,
		ChangeShort:       f.ChangeShort,
		ChangeMedium:      f.ChangeMedium,
		ChangeLong:        f.ChangeLong,
	})
}

func ProvideEstimator(cfg *config.Config) (confidence.Estimator, error) {
	c := cfg.Forecast.Confidence
	return confidence.New(confidence.Config{
		Strategy:    c.Strategy,
		High:        c.High,
		Low:         c.Low,
		Sensitivity: c.Sensitivity,
		Epsilon:     c.Epsilon,
	})
}

func ProvideForecaster(b *features.Builder, est confidence.Estimator, cfg *config.Config) *forecast.Forecaster {
	return forecast.NewForecaster(b, est, forecast.Options{
		MaxSteps:    cfg.Forecast.MaxSteps,
		FlatEpsilon: cfg.Forecast.FlatEpsilon,
		TopDrivers:  cfg.Forecast.Drivers,
	})
}

// ProvideTrainingConfig maps the training section onto the estimator options.
func ProvideTrainingConfig(cfg *config.Config) training.Config {
	t := cfg.Training
	out := training.DefaultConfig()
	out.Families = make([]models.ModelFamily, len(t.Families))
	for i, f := range t.Families {
		out.Families[i] = models.ModelFamily(f)
	}
	out.Holdout = t.Holdout
	out.Horizon = t.Horizon
	out.Linear.Lambda = t.RidgeLambda
	out.Boosted.Rounds = t.Boosted.Rounds
	out.Boosted.LearningRate = t.Boosted.LearningRate
	out.Boosted.Tree.MaxDepth = t.Boosted.MaxDepth
	out.Boosted.Tree.MinLeaf = t.Boosted.MinLeaf
	out.Boosted.MaxSamples = t.Boosted.MaxSamples
	out.Forest.Trees = t.Forest.Trees
	out.Forest.Tree.MaxDepth = t.Forest.MaxDepth
	out.Forest.Tree.MinLeaf = t.Forest.MinLeaf
	out.Forest.MaxSamples = t.Forest.MaxSamples
	out.Forest.Seed = t.Forest.Seed
	out.Recurrent.Reservoir = t.Recurrent.Reservoir
	out.Recurrent.SpectralRadius = t.Recurrent.SpectralRadius
	out.Recurrent.Density = t.Recurrent.Density
	out.Recurrent.InputScale = t.Recurrent.InputScale
	out.Recurrent.Lambda = t.RidgeLambda
	out.Recurrent.Seed = t.Recurrent.Seed
	return out
}

func ProvideHub(l *applogger.Logger) *ws.Hub {
	return ws.NewHub(ws.DefaultConfig(), l)
}

// ProvideForecastUseCase wires the forecast use case and its fan-out targets.
func ProvideForecastUseCase(
	cfg *config.Config,
	store repository.FeatureStore,
	modelStore *internalrepo.CachedModelStore,
	f *forecast.Forecaster,
	c cache.Service,
	history repository.ForecastStore,
	pub repository.ForecastPublisher,
	hub *ws.Hub,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.ForecastUseCase {
	members := make([]usecase.EnsembleMember, len(cfg.Ensemble.Members))
	for i, em := range cfg.Ensemble.Members {
		members[i] = usecase.EnsembleMember{Family: models.ModelFamily(em.Family), Weight: em.Weight}
	}
	uc := usecase.NewForecastUseCase(store, modelStore, f, c, m, l, usecase.ForecastConfig{
		History:  cfg.Forecast.History,
		CacheTTL: cfg.Forecast.CacheTTL,
		Timeout:  cfg.Forecast.Timeout,
		Members:  members,
	})
	uc.SetHistory(history)
	uc.SetPublisher(pub)
	uc.SetBroadcaster(hub)
	return uc
}

func ProvideTrainUseCase(
	cfg *config.Config,
	store repository.FeatureStore,
	modelStore *internalrepo.CachedModelStore,
	b *features.Builder,
	base training.Config,
	m repository.Metrics,
	c cache.Service,
	l *applogger.Logger,
) *usecase.TrainUseCase {
	uc := usecase.NewTrainUseCase(store, modelStore, b, base, m, l, usecase.TrainConfig{
		Symbols: cfg.Training.Symbols,
		History: cfg.Training.History,
		Timeout: cfg.Training.Timeout,
	})
	uc.SetInvalidator(modelStore)
	uc.SetLocker(c)
	return uc
}

func ProvideTrainJob(uc *usecase.TrainUseCase, l *applogger.Logger) *usecase.TrainJob {
	return usecase.NewTrainJob(uc, l)
}

// ProvideTrainQueue creates the Redis training queue, or nil when disabled.
func ProvideTrainQueue(cfg *config.Config, rc *redis.Client, job *usecase.TrainJob, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Training.Queue.Enabled {
		return nil
	}
	// Validate already rejected unknown modes
	mode, _ := queue.ParseMode(cfg.Training.Queue.Mode)
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    cfg.Training.Queue.Workers,
		RetryLimit: cfg.Training.Queue.MaxRetries,
		RetryDelay: cfg.Training.Queue.RetryDelay,
		JobTimeout: cfg.Training.Timeout + time.Minute,
	}, rc, mode, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(job)
	return q
}

// ProvideTrainDispatcher prefers the Redis queue and falls back to in-process training.
func ProvideTrainDispatcher(q *queue.RedisQueue, job *usecase.TrainJob) usecase.TrainDispatcher {
	if q == nil {
		return usecase.NewInlineTrainDispatcher(job)
	}
	return usecase.NewQueueTrainDispatcher(q)
}

func ProvideCandlesUseCase(store repository.FeatureStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(store)
}

func ProvideForecastHandler(
	cfg *config.Config,
	l *applogger.Logger,
	forecasts *usecase.ForecastUseCase,
	candles *usecase.CandlesUseCase,
	trainer *usecase.TrainUseCase,
	dispatcher usecase.TrainDispatcher,
) *api.ForecastEchoHandler {
	return api.NewForecastEchoHandler(l, forecasts, candles, trainer, dispatcher, api.RateLimit{
		Capacity:     float64(cfg.Forecast.RateLimit.Capacity),
		RefillPerSec: cfg.Forecast.RateLimit.RefillPerSec,
	}, api.StepLimits{
		Default: cfg.Forecast.DefaultSteps,
		Max:     cfg.Forecast.MaxSteps,
	})
}

// ProvideCandlePipeline throttles candle-closed events in front of the forecast refresher.
func ProvideCandlePipeline(cfg *config.Config, forecasts *usecase.ForecastUseCase, m repository.Metrics, l *applogger.Logger) *mid.CandlePipeline {
	refresher := usecase.NewCandleRefresher(forecasts, cfg.Forecast.DefaultSteps, forecast.Mode(cfg.Forecast.Mode), true, l)
	return mid.NewCandlePipeline(refresher, m,
		mid.WithMaxRPS(cfg.Kafka.Pipeline.MaxRPS),
		mid.WithBufferSize(cfg.Kafka.Pipeline.BufferSize),
	)
}

func ProvideKafkaCandlesHandler(cfg *config.Config, pipe *mid.CandlePipeline, m repository.Metrics) *usecase.KafkaCandlesHandler {
	return usecase.NewKafkaCandlesHandler(cfg.Kafka.CandlesTopic, pipe, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	forecasts *usecase.ForecastUseCase,
	trainer *usecase.TrainUseCase,
	h *api.ForecastEchoHandler,
	hub *ws.Hub,
	pipe *mid.CandlePipeline,
	kh *usecase.KafkaCandlesHandler,
	consumer *pkgkafka.Consumer,
	producer *pkgkafka.Producer,
	q *queue.RedisQueue,
	modelStore *internalrepo.CachedModelStore,
	c cache.Service,
	ch *pkgch.Client,
	m repository.Metrics,
) *server.App {
	return server.New(cfg, server.Components{
		Logger:    l,
		Forecasts: forecasts,
		Trainer:   trainer,
		Handler:   h,
		Hub:       hub,
		Pipeline:  pipe,
		Candles:   kh,
		Consumer:  consumer,
		Producer:  producer,
		Queue:     q,
		Models:    modelStore,
		Cache:     c,
		CH:        ch,
		Observe: func(topic string, d time.Duration, err error) {
			if err != nil {
				m.RecordError("candle_event")
			}
			m.RecordLatency("kafka_"+topic, d.Seconds())
		},
	})
}

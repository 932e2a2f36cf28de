//go:build wireinject
// +build wireinject

package di

import (
	"FinCast/pkg/config"
	"FinCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,
		ProvideCache,

		// Repositories
		ProvideFeatureStore,
		ProvideForecastStore,
		ProvideForecastPublisher,
		ProvideModelStore,

		// Forecasting engine
		ProvideFeatureBuilder,
		ProvideEstimator,
		ProvideForecaster,
		ProvideTrainingConfig,

		// Use cases
		ProvideHub,
		ProvideForecastUseCase,
		ProvideTrainUseCase,
		ProvideTrainJob,
		ProvideTrainQueue,
		ProvideTrainDispatcher,
		ProvideCandlesUseCase,
		ProvideCandlePipeline,
		ProvideKafkaCandlesHandler,

		// Transport
		ProvideForecastHandler,

		ProvideApp,
	)
	return &server.App{}, nil
}

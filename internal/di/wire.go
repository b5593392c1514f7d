//go:build wireinject
// +build wireinject

package di

import (
	drepo "TrustBoard/internal/domain/repository"
	"TrustBoard/pkg/config"
	"TrustBoard/pkg/metrics"
	"TrustBoard/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,
		wire.Bind(new(drepo.Metrics), new(*metrics.Recorder)),

		// Infrastructure clients
		ProvideHTTPClient,
		ProvideLimiter,
		ProvideCache,
		ProvideCandleStore,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideFetchers,
		ProvideSnapshotStore,
		ProvideRunReports,
		ProvideLoader,

		// Use cases
		ProvidePipeline,
		ProvideExtractor,
		ProvideBaseline,
		ProvideETLRunner,
		ProvideCandlesUseCase,
		ProvideQualityUseCase,
		ProvideKafkaCandlesHandler,

		// Delivery
		ProvideTrustHandler,
		ProvideApp,
	)
	return nil, nil, nil
}

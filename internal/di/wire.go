//go:build wireinject
// +build wireinject

package di

import (
	"StaffPulse/pkg/config"
	"StaffPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup func closes infrastructure clients in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideCache,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideLedger,
		ProvideStateStore,
		ProvideDecisionPublisher,
		ProvideAuditQueue,

		// Collaborators
		ProvidePredictor,
		ProvideNotifier,

		// Engine
		ProvideScorer,
		ProvideClassifier,
		ProvideAdvisor,
		ProvideDispatcher,

		// Use cases
		ProvideAuditRecorder,
		ProvideHistoryService,
		ProvideDecisionCycle,
		ProvideSnapshotHandler,

		// Transport
		ProvideDecisionsHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/mongodb"
	"github.com/thaitype/monguard-sub000/internal/logger"
	"github.com/thaitype/monguard-sub000/internal/provider"
	"github.com/thaitype/monguard-sub000/internal/worker"
)

// InitializeRelayApp creates the relay application and its dependencies.
func InitializeRelayApp(appConfig *conf.AppConfig) (*RelayApp, func(), error) {
	wire.Build(
		// Config Providers
		wire.FieldsOf(new(*conf.AppConfig), "LogConfig", "MongodbConfig", "RabbitMQConfig", "WorkerConfig", "OutboxConfig"),
		provider.ProvideAppMode,

		// Common Components
		logger.NewLogger,
		mongodb.NewMongoDB,
		provider.ProvideDatabase,

		// Outbox backend and MQ publisher
		provider.ProvideOutboxRepository,
		provider.ProvidePublisher,

		// Worker
		worker.NewOutboxRelay,

		// Final App
		NewRelayApp,
	)
	return nil, nil, nil
}

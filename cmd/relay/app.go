package main

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thaitype/monguard-sub000/internal/worker"
)

// RelayApp holds the components of the relay application.
type RelayApp struct {
	relay  *worker.OutboxRelay
	logger *zap.Logger
}

// NewRelayApp creates a new relay application.
func NewRelayApp(relay *worker.OutboxRelay, logger *zap.Logger) *RelayApp {
	return &RelayApp{
		relay:  relay,
		logger: logger,
	}
}

// Run starts the relay worker and blocks until the context is cancelled.
func (a *RelayApp) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.relay.Start(gCtx)
		return nil
	})

	return g.Wait()
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/memorydb"
	"github.com/thaitype/monguard-sub000/internal/models"
)

type capturingPublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, body)
	return nil
}

func (p *capturingPublisher) Close() {}

func newTestRelay(outbox *memorydb.OutboxStore, publisher *capturingPublisher) *OutboxRelay {
	workerCfg := &conf.WorkerConfig{Outbox: conf.OutboxWorkerConfig{IntervalSeconds: 1, BatchSize: 10}}
	outboxCfg := &conf.OutboxConfig{MaxRetryAttempts: 2, Topic: "audit.events"}
	return NewOutboxRelay(outbox, publisher, workerCfg, outboxCfg, zap.NewNop())
}

func enqueueEvent(t *testing.T, outbox *memorydb.OutboxStore, id string, ts time.Time) {
	t.Helper()
	err := outbox.Enqueue(context.Background(), &models.OutboxEvent{
		ID:             id,
		Action:         "update",
		CollectionName: "users",
		DocumentID:     id + "-doc",
		Timestamp:      ts,
	})
	require.NoError(t, err)
}

func TestOutboxRelay_DeliversAndAcks(t *testing.T) {
	ctx := context.Background()
	outbox := memorydb.NewOutboxStore(&conf.OutboxConfig{MaxRetryAttempts: 2})
	publisher := &capturingPublisher{}
	relay := newTestRelay(outbox, publisher)

	now := time.Now()
	enqueueEvent(t, outbox, "e1", now)
	enqueueEvent(t, outbox, "e2", now.Add(time.Second))

	relay.processBatch(ctx)

	require.Len(t, publisher.payloads, 2)
	require.Equal(t, []string{"audit.events", "audit.events"}, publisher.topics)
	require.Contains(t, string(publisher.payloads[0]), `"e1"`)

	depth, err := outbox.QueueDepth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)
}

func TestOutboxRelay_FailedDeliveryRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	outbox := memorydb.NewOutboxStore(&conf.OutboxConfig{MaxRetryAttempts: 2})
	publisher := &capturingPublisher{err: errors.New("broker down")}
	relay := newTestRelay(outbox, publisher)

	enqueueEvent(t, outbox, "e1", time.Now())

	relay.processBatch(ctx)
	events, err := outbox.Dequeue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, events[0].RetryCount)

	relay.processBatch(ctx)
	depth, err := outbox.QueueDepth(ctx)
	require.NoError(t, err)
	require.Zero(t, depth)

	dead, err := outbox.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, "e1", dead[0].ID)

	// Once the broker recovers nothing is left to deliver.
	publisher.err = nil
	relay.processBatch(ctx)
	require.Empty(t, publisher.payloads)
}

func TestOutboxRelay_StartStopsOnCancel(t *testing.T) {
	outbox := memorydb.NewOutboxStore(&conf.OutboxConfig{MaxRetryAttempts: 2})
	relay := newTestRelay(outbox, &capturingPublisher{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after context cancellation")
	}
}

package memorydb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/thaitype/monguard-sub000/internal/conf"
	"github.com/thaitype/monguard-sub000/internal/dao/repository"
	"github.com/thaitype/monguard-sub000/internal/models"
)

func NewOutboxStore(cfg *conf.OutboxConfig) *OutboxStore {
	return &OutboxStore{
		pending:          make(map[string]*models.OutboxEvent),
		deadLetters:      make(map[string]*models.DeadLetterEvent),
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// OutboxStore is an in-memory outbox for development and testing. It follows
// the same state machine as the durable backends but holds nothing across
// restarts.
type OutboxStore struct {
	mu               sync.Mutex
	pending          map[string]*models.OutboxEvent
	deadLetters      map[string]*models.DeadLetterEvent
	maxRetryAttempts int
}

func (s *OutboxStore) Enqueue(_ context.Context, event *models.OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[event.ID]; exists {
		return nil
	}
	copied := *event
	s.pending[event.ID] = &copied
	return nil
}

func (s *OutboxStore) Dequeue(_ context.Context, limit int) ([]*models.OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*models.OutboxEvent, 0, len(s.pending))
	for _, event := range s.pending {
		if event.RetryCount < s.maxRetryAttempts {
			copied := *event
			events = append(events, &copied)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (s *OutboxStore) Ack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, id)
	return nil
}

func (s *OutboxStore) Fail(_ context.Context, id string, procErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.pending[id]
	if !ok {
		return nil
	}

	now := time.Now()
	event.RetryCount++
	event.LastProcessedAt = &now

	if event.RetryCount >= s.maxRetryAttempts {
		s.deadLetters[id] = &models.DeadLetterEvent{
			OutboxEvent: *event,
			Error: models.OutboxErrorDetail{
				Message:   procErr.Error(),
				Timestamp: now,
			},
		}
		delete(s.pending, id)
	}
	return nil
}

func (s *OutboxStore) QueueDepth(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var depth int64
	for _, event := range s.pending {
		if event.RetryCount < s.maxRetryAttempts {
			depth++
		}
	}
	return depth, nil
}

func (s *OutboxStore) DeadLetters(_ context.Context, limit int) ([]*models.DeadLetterEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]*models.DeadLetterEvent, 0, len(s.deadLetters))
	for _, event := range s.deadLetters {
		copied := *event
		events = append(events, &copied)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

var _ repository.OutboxRepository = (*OutboxStore)(nil)

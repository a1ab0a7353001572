package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	id "agegate/pkg/domain"
	"agegate/pkg/requestcontext"
)

// Store is where published events land.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher stamps events and hands them to a store. It is append-only.
type Publisher struct {
	store Store
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	return p.store.Append(ctx, event)
}

// InMemoryStore keeps events per account for tests and single-node runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.AccountID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.AccountID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.Account] = append(s.events[event.Account], event)
	return nil
}

func (s *InMemoryStore) ListByAccount(_ context.Context, account id.AccountID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[account]...), nil
}

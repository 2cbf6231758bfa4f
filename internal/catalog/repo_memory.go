package catalog

import (
	"context"
	"sync"
)

// MemoryRepository is an in-process Repository used by tests and local runs.
type MemoryRepository struct {
	mu         sync.Mutex
	businesses map[string]Business
	events     []EventLog
}

func NewMemoryRepository(businesses ...Business) *MemoryRepository {
	r := &MemoryRepository{businesses: make(map[string]Business)}
	for _, b := range businesses {
		r.businesses[b.ID] = b
	}
	return r
}

func (r *MemoryRepository) GetBusiness(_ context.Context, id string) (*Business, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.businesses[id]
	if !ok {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of every recorded event.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

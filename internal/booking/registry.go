package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry owns the live flows of this process, one per session.
// Evicted flows are not lost: their selection stays persisted and a new
// Start for the same session restores it.
type Registry struct {
	mu      sync.Mutex
	flows   map[string]*Flow
	deps    Deps
	idleTTL time.Duration
}

func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	return &Registry{
		flows:   make(map[string]*Flow),
		deps:    deps.withDefaults(),
		idleTTL: idleTTL,
	}
}

// Start returns the live flow for the session when it belongs to the same
// business, otherwise it builds one through the restore routine. An empty
// session id gets a fresh one.
func (r *Registry) Start(ctx context.Context, p StartParams) (*Flow, error) {
	if p.SessionID == "" {
		p.SessionID = uuid.NewString()
	}

	r.mu.Lock()
	existing, ok := r.flows[p.SessionID]
	r.mu.Unlock()
	if ok && existing.scope.BusinessID == p.BusinessID && existing.State() != StateConfirmed {
		existing.touch()
		return existing, nil
	}

	f, err := Start(ctx, r.deps, p)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.flows[p.SessionID] = f
	r.mu.Unlock()
	return f, nil
}

func (r *Registry) Get(sessionID string) (*Flow, error) {
	r.mu.Lock()
	f, ok := r.flows[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrFlowNotFound
	}
	f.touch()
	return f, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep evicts flows idle for longer than the registry TTL and reports
// how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, f := range r.flows {
		if now.Sub(f.idleSince()) > r.idleTTL {
			delete(r.flows, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.deps.Logger.Debug("evicted idle booking flows",
			zap.Int("evicted", evicted),
			zap.Int("remaining", len(r.flows)))
	}
	return evicted
}

// RunSweeper evicts idle flows every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.deps.Now())
		}
	}
}

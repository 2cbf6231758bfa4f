package selection

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// DefaultTTL is how long a persisted selection stays restorable.
const DefaultTTL = time.Hour

// Scope identifies one persisted selection: a customer session on a business.
type Scope struct {
	SessionID  string
	BusinessID string
}

func (s Scope) Key() string {
	return fmt.Sprintf("booking:selection:%s:%s", s.BusinessID, s.SessionID)
}

// Record is the persisted shape of a Selection.
type Record struct {
	SelectedDate       string             `json:"selectedDate"`
	SelectedTime       *int               `json:"selectedTime"`
	SelectedServiceIDs []string           `json:"selectedServiceIds"`
	SelectedEmployees  map[string]*string `json:"selectedEmployees"`
	Notes              string             `json:"notes,omitempty"`
	SavedAt            time.Time          `json:"savedAt"`
}

func NewRecord(sel Selection, now time.Time) Record {
	c := sel.Clone()
	return Record{
		SelectedDate:       c.Date,
		SelectedTime:       c.Time,
		SelectedServiceIDs: c.ServiceIDs,
		SelectedEmployees:  c.Employees,
		Notes:              c.Notes,
		SavedAt:            now.UTC(),
	}
}

func (r Record) Selection() Selection {
	sel := Selection{
		Date:       r.SelectedDate,
		Time:       r.SelectedTime,
		ServiceIDs: slices.Clone(r.SelectedServiceIDs),
		Employees:  r.SelectedEmployees,
		Notes:      r.Notes,
	}
	if sel.Employees == nil {
		sel.Employees = map[string]*string{}
	}
	return sel.Clone()
}

// Expired reports whether the record is older than ttl. A record without a
// save timestamp is treated as expired.
func (r Record) Expired(now time.Time, ttl time.Duration) bool {
	if r.SavedAt.IsZero() {
		return true
	}
	return now.Sub(r.SavedAt) > ttl
}

// Persister mirrors a selection into a scoped, expiring store.
// Load returns (nil, nil) when nothing restorable exists.
type Persister interface {
	Save(ctx context.Context, scope Scope, sel Selection) error
	Load(ctx context.Context, scope Scope) (*Selection, error)
	Clear(ctx context.Context, scope Scope) error
}

// MemoryPersister keeps records in process memory.
type MemoryPersister struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]Record
}

func NewMemoryPersister(ttl time.Duration) *MemoryPersister {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryPersister{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]Record),
	}
}

// WithClock replaces the time source, used by tests to simulate expiry.
func (m *MemoryPersister) WithClock(now func() time.Time) *MemoryPersister {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryPersister) Save(_ context.Context, scope Scope, sel Selection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[scope.Key()] = NewRecord(sel, m.now())
	return nil
}

func (m *MemoryPersister) Load(_ context.Context, scope Scope) (*Selection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.items[scope.Key()]
	if !ok {
		return nil, nil
	}
	if rec.Expired(m.now(), m.ttl) {
		delete(m.items, scope.Key())
		return nil, nil
	}
	sel := rec.Selection()
	return &sel, nil
}

func (m *MemoryPersister) Clear(_ context.Context, scope Scope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, scope.Key())
	return nil
}

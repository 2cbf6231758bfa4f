package booking

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/catalog"
	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

const (
	EventFlowStarted       = "FLOW_STARTED"
	EventServiceRolledBack = "SERVICE_ROLLED_BACK"
	EventBookingSubmitted  = "BOOKING_SUBMITTED"
	EventBookingFailed     = "BOOKING_FAILED"
)

type State string

const (
	StateNoDate     State = "no_date"
	StateDateChosen State = "date_chosen"
	StateTimeChosen State = "time_chosen"
	StateReady      State = "ready"
	StateSubmitting State = "submitting"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

type phase int

const (
	phaseEditing phase = iota
	phaseSubmitting
	phaseConfirmed
	phaseFailed
)

// Availability is the read side of the remote scheduler.
type Availability interface {
	QueryWindow(ctx context.Context, q scheduler.WindowQuery) (scheduler.Window, error)
	QueryAssignments(ctx context.Context, q scheduler.AssignmentQuery) ([]scheduler.ServiceSlot, error)
}

// Scheduler is everything a flow needs from the remote scheduler.
type Scheduler interface {
	Availability
	Submit(ctx context.Context, req scheduler.SubmitRequest) (scheduler.SubmitResponse, error)
}

type EventRecorder interface {
	InsertEvent(ctx context.Context, ev catalog.EventLog) error
}

type Deps struct {
	Scheduler Scheduler
	Catalog   catalog.Repository
	Persister selection.Persister
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Flow is one customer's booking in progress. Every mutation goes through
// its methods so the selection stays consistent with the scheduler after
// each settled operation.
//
// Mutations that query the scheduler are tagged with a token. A response
// is applied only if no newer mutation started in the meantime; otherwise
// it is dropped with ErrStaleResult.
type Flow struct {
	mu sync.Mutex

	scope         selection.Scope
	business      catalog.Business
	customerPhone string

	sched     Scheduler
	persister selection.Persister
	events    EventRecorder
	logger    *zap.Logger
	now       func() time.Time

	store   store
	token   uint64
	phase   phase
	result  *SubmitResult

	lastActive time.Time
}

// View is a read-only copy of the flow for presentation.
type View struct {
	SessionID   string                  `json:"session_id"`
	BusinessID  string                  `json:"business_id"`
	State       State                   `json:"state"`
	Selection   selection.Selection     `json:"selection"`
	Window      *scheduler.Window       `json:"window,omitempty"`
	Assignments []scheduler.ServiceSlot `json:"assignments,omitempty"`
	Quote       Quote                   `json:"quote"`
	Loading     bool                    `json:"loading"`
	Error       string                  `json:"error,omitempty"`
	Notice      *Notice                 `json:"notice,omitempty"`
	Result      *SubmitResult           `json:"result,omitempty"`
}

func (f *Flow) Scope() selection.Scope { return f.scope }

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.store.cur.clone()
	v := View{
		SessionID:   f.scope.SessionID,
		BusinessID:  f.scope.BusinessID,
		State:       f.stateLocked(),
		Selection:   cur.sel,
		Window:      cur.window,
		Assignments: cur.slots,
		Quote:       BuildQuote(cur.sel, cur.slots, f.business),
		Loading:     f.store.loading,
		Notice:      f.store.notice,
		Result:      f.result,
	}
	if f.store.err != nil {
		v.Error = f.store.err.Error()
	}
	return v
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

// Selection returns a copy of the current selection.
func (f *Flow) Selection() selection.Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.store.cur.sel.Clone()
}

func (f *Flow) stateLocked() State {
	switch f.phase {
	case phaseSubmitting:
		return StateSubmitting
	case phaseConfirmed:
		return StateConfirmed
	case phaseFailed:
		return StateFailed
	}

	cur := f.store.cur
	switch {
	case !cur.sel.HasDate():
		return StateNoDate
	case !cur.sel.HasTime():
		return StateDateChosen
	}
	for _, id := range cur.sel.ServiceIDs {
		slot, ok := scheduler.FindSlot(cur.slots, id)
		if !ok || !slot.Bookable() {
			return StateTimeChosen
		}
	}
	return StateReady
}

func (f *Flow) touch() {
	f.mu.Lock()
	f.lastActive = f.now()
	f.mu.Unlock()
}

func (f *Flow) idleSince() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

// begin validates a mutation against the current snapshot and, if allowed,
// hands out a private copy plus the token that must still be current when
// the mutation settles.
func (f *Flow) begin(check func(cur snapshot) error) (snapshot, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.phase {
	case phaseSubmitting:
		return snapshot{}, 0, ErrBusy
	case phaseConfirmed:
		return snapshot{}, 0, ErrFlowClosed
	}
	if check != nil {
		if err := check(f.store.cur); err != nil {
			return snapshot{}, 0, err
		}
	}

	f.token++
	f.lastActive = f.now()
	return f.store.begin(), f.token, nil
}

// settle applies next if token is still current and mirrors the result to
// the persister. Rollbacks pass persist=false.
func (f *Flow) settle(ctx context.Context, token uint64, next snapshot, softErr error, notice *Notice, persist bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if token != f.token {
		f.logger.Debug("discarding stale result",
			zap.String("session_id", f.scope.SessionID),
			zap.Uint64("token", token),
			zap.Uint64("current", f.token))
		return ErrStaleResult
	}

	f.store.settle(next, softErr, notice)
	f.phase = phaseEditing
	f.result = nil

	if persist {
		if err := f.persister.Save(ctx, f.scope, f.store.cur.sel); err != nil {
			f.logger.Warn("failed to persist selection",
				zap.String("session_id", f.scope.SessionID),
				zap.String("business_id", f.scope.BusinessID),
				zap.Error(err))
		}
	}
	return nil
}

// abort ends a mutation whose scheduler query failed. The snapshot stays
// as it was before the mutation began.
func (f *Flow) abort(token uint64, err error) error {
	degraded := degrade(err)

	f.mu.Lock()
	defer f.mu.Unlock()

	if token != f.token {
		return ErrStaleResult
	}
	f.store.fail(degraded)
	f.logger.Warn("scheduler query failed, keeping previous selection",
		zap.String("session_id", f.scope.SessionID),
		zap.String("business_id", f.scope.BusinessID),
		zap.Error(err))
	return degraded
}

func (f *Flow) windowQuery(date string, serviceIDs []string) scheduler.WindowQuery {
	return scheduler.WindowQuery{
		BusinessID: f.scope.BusinessID,
		Date:       date,
		ServiceIDs: serviceIDs,
	}
}

func (f *Flow) assignmentQuery(date string, serviceIDs []string, startTime int) scheduler.AssignmentQuery {
	return scheduler.AssignmentQuery{
		BusinessID:    f.scope.BusinessID,
		Date:          date,
		ServiceIDs:    serviceIDs,
		StartTime:     startTime,
		CustomerPhone: f.customerPhone,
	}
}

func (f *Flow) logEvent(ctx context.Context, eventType string, payload map[string]any) {
	if f.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := catalog.EventLog{
		EventType:  eventType,
		BusinessID: f.scope.BusinessID,
		SessionID:  f.scope.SessionID,
		Payload:    data,
		CreatedAt:  f.now(),
	}
	if err := f.events.InsertEvent(ctx, ev); err != nil {
		f.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("session_id", f.scope.SessionID),
			zap.Error(err))
	}
}

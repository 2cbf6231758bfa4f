package booking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

type StartParams struct {
	SessionID     string
	BusinessID    string
	ServiceIDs    []string // used when nothing restorable is persisted
	CustomerPhone string
}

// Start opens a flow for a session. A persisted selection is only a hint:
// every field is checked again against the catalog and the scheduler
// before it is kept.
func Start(ctx context.Context, deps Deps, p StartParams) (*Flow, error) {
	deps = deps.withDefaults()

	business, err := deps.Catalog.GetBusiness(ctx, p.BusinessID)
	if err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}

	f := &Flow{
		scope:         selection.Scope{SessionID: p.SessionID, BusinessID: p.BusinessID},
		business:      *business,
		customerPhone: p.CustomerPhone,
		sched:         deps.Scheduler,
		persister:     deps.Persister,
		events:        deps.Catalog,
		logger:        deps.Logger,
		now:           deps.Now,
	}
	f.lastActive = f.now()

	saved, err := f.persister.Load(ctx, f.scope)
	if err != nil {
		f.logger.Warn("failed to load persisted selection, starting fresh",
			zap.String("session_id", p.SessionID),
			zap.String("business_id", p.BusinessID),
			zap.Error(err))
		saved = nil
	}

	var serviceIDs []string
	if saved != nil {
		serviceIDs = f.business.KnownServices(saved.ServiceIDs)
	}
	restored := len(serviceIDs) > 0
	if !restored {
		serviceIDs = f.business.KnownServices(p.ServiceIDs)
	}
	if len(serviceIDs) == 0 {
		return nil, ErrNoServices
	}

	snap := snapshot{sel: selection.New(serviceIDs)}
	var soft error
	if restored {
		snap.sel.Notes = saved.Notes
		snap, soft = f.revalidate(ctx, snap, *saved)
	}

	f.store.cur = snap
	f.store.err = soft
	f.saveLocked(ctx)

	f.logEvent(ctx, EventFlowStarted, map[string]any{
		"restored":    restored,
		"service_ids": serviceIDs,
	})
	f.logger.Debug("booking flow started",
		zap.String("session_id", p.SessionID),
		zap.String("business_id", p.BusinessID),
		zap.Bool("restored", restored),
		zap.String("state", string(f.stateLocked())))

	return f, nil
}

// revalidate carries over the saved date, time and staff that still hold.
// The date must pass the local checks, the time must be in a freshly
// fetched window, and staff go through the same defaulting as SelectTime.
func (f *Flow) revalidate(ctx context.Context, snap snapshot, saved selection.Selection) (snapshot, error) {
	if !saved.HasDate() {
		return snap, nil
	}
	if err := f.business.CheckDate(saved.Date, f.now()); err != nil {
		f.logger.Debug("dropping persisted date",
			zap.String("session_id", f.scope.SessionID),
			zap.String("date", saved.Date),
			zap.Error(err))
		return snap, nil
	}
	snap.sel.Date = saved.Date

	win, err := f.sched.QueryWindow(ctx, f.windowQuery(snap.sel.Date, snap.sel.ServiceIDs))
	snap.window = &win
	if err != nil {
		return snap, degrade(err)
	}

	if !saved.HasTime() || !win.Contains(*saved.Time) {
		return snap, nil
	}

	slots, err := f.sched.QueryAssignments(ctx, f.assignmentQuery(snap.sel.Date, snap.sel.ServiceIDs, *saved.Time))
	if err != nil {
		return snap, degrade(err)
	}

	t := *saved.Time
	snap.sel.Time = &t
	snap.slots = slots
	snap.sel.Employees = assignEmployees(snap.sel.ServiceIDs, slots, saved.Employees)
	return snap, nil
}

// compile-time check that the HTTP client satisfies the flow's needs.
var _ Scheduler = (*scheduler.Client)(nil)

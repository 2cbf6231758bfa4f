package booking

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

// SelectDate picks a new day. The time and staff are cleared and a fresh
// window is fetched for the current services. Past and closed days are
// rejected locally without a scheduler call.
//
// If the window query fails the date is still taken, with no slots shown,
// and an ErrDegraded error is returned.
func (f *Flow) SelectDate(ctx context.Context, date string) error {
	snap, token, err := f.begin(func(snapshot) error {
		return f.business.CheckDate(date, f.now())
	})
	if err != nil {
		return err
	}

	next := snap
	next.sel.Date = date
	next.sel.ClearTime()
	next.slots = nil

	win, qerr := f.sched.QueryWindow(ctx, f.windowQuery(date, next.sel.ServiceIDs))
	next.window = &win

	var soft error
	if qerr != nil {
		soft = degrade(qerr)
		f.logger.Warn("window query failed on date change",
			zap.String("session_id", f.scope.SessionID),
			zap.String("date", date),
			zap.Error(qerr))
	}
	if err := f.settle(ctx, token, next, soft, nil, true); err != nil {
		return err
	}
	return soft
}

// SelectTime picks a start time from the current window and assigns each
// service its first returned employee.
func (f *Flow) SelectTime(ctx context.Context, startTime int) error {
	snap, token, err := f.begin(func(cur snapshot) error {
		if !cur.sel.HasDate() {
			return ErrNoDate
		}
		if err := selection.ValidateTime(startTime); err != nil {
			return err
		}
		if cur.window == nil || !cur.window.Contains(startTime) {
			return ErrTimeNotAvailable
		}
		return nil
	})
	if err != nil {
		return err
	}

	slots, qerr := f.sched.QueryAssignments(ctx, f.assignmentQuery(snap.sel.Date, snap.sel.ServiceIDs, startTime))
	if qerr != nil {
		return f.abort(token, qerr)
	}

	next := snap
	t := startTime
	next.sel.Time = &t
	next.sel.Employees = assignEmployees(next.sel.ServiceIDs, slots, nil)
	next.slots = slots

	return f.settle(ctx, token, next, nil, unavailableNotice(next.sel.ServiceIDs, slots), true)
}

// AddService appends a service and reconciles the rest of the selection.
//
// If the held time is no longer offered for the larger set, the time and
// staff are cleared. If the time still holds but nobody can perform the new
// service then, the whole operation is rolled back: the service is dropped,
// the window is fetched again for the original services, and
// ErrNoEligibleStaff is returned.
func (f *Flow) AddService(ctx context.Context, serviceID string) error {
	snap, token, err := f.begin(func(cur snapshot) error {
		if _, ok := f.business.Service(serviceID); !ok {
			return ErrUnknownService
		}
		if cur.sel.HasService(serviceID) {
			return ErrServiceAlreadySelected
		}
		return nil
	})
	if err != nil {
		return err
	}

	next := snap.clone()
	next.sel.ServiceIDs = append(next.sel.ServiceIDs, serviceID)

	if !next.sel.HasDate() {
		return f.settle(ctx, token, next, nil, nil, true)
	}

	win, qerr := f.sched.QueryWindow(ctx, f.windowQuery(next.sel.Date, next.sel.ServiceIDs))
	if qerr != nil {
		return f.abort(token, qerr)
	}
	next.window = &win

	if !next.sel.HasTime() {
		return f.settle(ctx, token, next, nil, nil, true)
	}
	held := *next.sel.Time
	if !win.Contains(held) {
		next.sel.ClearTime()
		next.slots = nil
		return f.settle(ctx, token, next, nil, &Notice{Kind: NoticeTimeCleared}, true)
	}

	slots, qerr := f.sched.QueryAssignments(ctx, f.assignmentQuery(next.sel.Date, next.sel.ServiceIDs, held))
	if qerr != nil {
		return f.abort(token, qerr)
	}

	added, ok := scheduler.FindSlot(slots, serviceID)
	if !ok || !added.Bookable() {
		return f.rollbackAdd(ctx, token, snap, serviceID, added.Reason)
	}

	next.slots = slots
	next.sel.Employees = assignEmployees(next.sel.ServiceIDs, slots, snap.sel.Employees)
	return f.settle(ctx, token, next, nil, unavailableNotice(next.sel.ServiceIDs, slots), true)
}

// rollbackAdd restores prev after a failed add. The window is re-queried
// rather than served from prev because availability may have moved. If the
// held time is gone from the fresh window it is dropped, and only then is
// the selection persisted again.
func (f *Flow) rollbackAdd(ctx context.Context, token uint64, prev snapshot, serviceID, reason string) error {
	restored := prev.clone()
	notice := &Notice{Kind: NoticeNoEligibleStaff, ServiceIDs: []string{serviceID}, Reason: reason}

	win, qerr := f.sched.QueryWindow(ctx, f.windowQuery(prev.sel.Date, prev.sel.ServiceIDs))
	if qerr != nil {
		f.logger.Warn("window re-query failed during rollback, keeping cached window",
			zap.String("session_id", f.scope.SessionID),
			zap.Error(qerr))
	} else {
		restored.window = &win
		if restored.sel.HasTime() && !win.Contains(*restored.sel.Time) {
			restored.sel.ClearTime()
			restored.slots = nil
			notice.TimeCleared = true
		}
	}

	if err := f.settle(ctx, token, restored, nil, notice, notice.TimeCleared); err != nil {
		return err
	}

	f.logger.Info("service rolled back, no eligible staff",
		zap.String("session_id", f.scope.SessionID),
		zap.String("service_id", serviceID),
		zap.String("reason", reason))
	f.logEvent(ctx, EventServiceRolledBack, map[string]any{
		"service_id": serviceID,
		"date":       prev.sel.Date,
		"time":       prev.sel.Time,
		"reason":     reason,
	})
	return ErrNoEligibleStaff
}

// RemoveService drops a service. Removing the last one is refused and
// leaves the flow untouched.
func (f *Flow) RemoveService(ctx context.Context, serviceID string) error {
	snap, token, err := f.begin(func(cur snapshot) error {
		if !cur.sel.HasService(serviceID) {
			return ErrServiceNotSelected
		}
		if len(cur.sel.ServiceIDs) <= 1 {
			return ErrLastService
		}
		return nil
	})
	if err != nil {
		return err
	}

	next := snap.clone()
	next.sel.ServiceIDs = slices.DeleteFunc(next.sel.ServiceIDs, func(id string) bool { return id == serviceID })
	delete(next.sel.Employees, serviceID)

	if !next.sel.HasDate() {
		return f.settle(ctx, token, next, nil, nil, true)
	}

	win, qerr := f.sched.QueryWindow(ctx, f.windowQuery(next.sel.Date, next.sel.ServiceIDs))
	if qerr != nil {
		return f.abort(token, qerr)
	}
	next.window = &win

	if !next.sel.HasTime() {
		return f.settle(ctx, token, next, nil, nil, true)
	}
	held := *next.sel.Time
	if !win.Contains(held) {
		next.sel.ClearTime()
		next.slots = nil
		return f.settle(ctx, token, next, nil, &Notice{Kind: NoticeTimeCleared}, true)
	}

	slots, qerr := f.sched.QueryAssignments(ctx, f.assignmentQuery(next.sel.Date, next.sel.ServiceIDs, held))
	if qerr != nil {
		return f.abort(token, qerr)
	}

	next.slots = slots
	next.sel.Employees = assignEmployees(next.sel.ServiceIDs, slots, snap.sel.Employees)
	return f.settle(ctx, token, next, nil, unavailableNotice(next.sel.ServiceIDs, slots), true)
}

// ChooseEmployee sets the staff for one service. A nil employeeID means
// "any employee". The candidate must come from the last assignment query,
// so no scheduler call is made. It is refused while a query is in flight.
func (f *Flow) ChooseEmployee(ctx context.Context, serviceID string, employeeID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.phase == phaseSubmitting || f.store.loading:
		return ErrBusy
	case f.phase == phaseConfirmed:
		return ErrFlowClosed
	}

	cur := &f.store.cur
	if !cur.sel.HasTime() {
		return ErrNoTime
	}
	if !cur.sel.HasService(serviceID) {
		return ErrServiceNotSelected
	}
	if employeeID != nil {
		slot, ok := scheduler.FindSlot(cur.slots, serviceID)
		if !ok {
			return ErrEmployeeNotEligible
		}
		if _, eligible := slot.Employee(*employeeID); !eligible {
			return ErrEmployeeNotEligible
		}
		v := *employeeID
		employeeID = &v
	}

	cur.sel.Employees[serviceID] = employeeID
	f.phase = phaseEditing
	f.result = nil
	f.lastActive = f.now()
	f.saveLocked(ctx)
	return nil
}

// SetNotes replaces the free-form note submitted with the booking.
func (f *Flow) SetNotes(ctx context.Context, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.phase == phaseConfirmed {
		return ErrFlowClosed
	}
	f.store.cur.sel.Notes = notes
	f.lastActive = f.now()
	f.saveLocked(ctx)
	return nil
}

func (f *Flow) saveLocked(ctx context.Context) {
	if err := f.persister.Save(ctx, f.scope, f.store.cur.sel); err != nil {
		f.logger.Warn("failed to persist selection",
			zap.String("session_id", f.scope.SessionID),
			zap.Error(err))
	}
}

func degrade(err error) error {
	return fmt.Errorf("%w: %w", ErrDegraded, err)
}

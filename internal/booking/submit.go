package booking

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/scheduler"
)

// Error codes returned by the scheduler when it rejects a booking.
const (
	CodeUserTimeConflict     = "USER_TIME_CONFLICT"
	CodeBookingLimitReached  = "BOOKING_LIMIT_REACHED"
	CodeSlotNotAvailable     = "SLOT_NOT_AVAILABLE"
	CodeNoEmployeeAvailable  = "NO_EMPLOYEE_AVAILABLE"
	CodeBusinessClosed       = "BUSINESS_CLOSED"
	CodeEmployeeNotWorking   = "EMPLOYEE_NOT_WORKING"
	CodeEmployeeNotAvailable = "EMPLOYEE_NOT_AVAILABLE"
	CodePastDate             = "PAST_DATE"
	CodeExceedsBusinessHours = "EXCEEDS_BUSINESS_HOURS"
)

type FailureCategory string

const (
	FailureTimeConflict    FailureCategory = "time_conflict"
	FailureLimitReached    FailureCategory = "limit_reached"
	FailureSlotTaken       FailureCategory = "slot_taken"
	FailureNoStaff         FailureCategory = "no_staff"
	FailureBusinessClosed  FailureCategory = "business_closed"
	FailureStaffNotWorking FailureCategory = "staff_not_working"
	FailureStaffBusy       FailureCategory = "staff_busy"
	FailurePastDate        FailureCategory = "past_date"
	FailureOutsideHours    FailureCategory = "outside_hours"
	FailureGeneric         FailureCategory = "generic"
)

var failureMessages = map[FailureCategory]string{
	FailureTimeConflict:    "You already have a booking at this time.",
	FailureLimitReached:    "You have reached the maximum number of active bookings.",
	FailureSlotTaken:       "This time was just taken. Please choose another time.",
	FailureNoStaff:         "No specialist is available at this time. Please choose another time.",
	FailureBusinessClosed:  "The business is closed on the selected day.",
	FailureStaffNotWorking: "The selected specialist does not work on this day.",
	FailureStaffBusy:       "The selected specialist is busy at this time.",
	FailurePastDate:        "The selected date has already passed.",
	FailureOutsideHours:    "The selected services do not fit into business hours.",
	FailureGeneric:         "Something went wrong. Please try again later or call the business directly.",
}

var codeCategories = map[string]FailureCategory{
	CodeUserTimeConflict:     FailureTimeConflict,
	CodeBookingLimitReached:  FailureLimitReached,
	CodeSlotNotAvailable:     FailureSlotTaken,
	CodeNoEmployeeAvailable:  FailureNoStaff,
	CodeBusinessClosed:       FailureBusinessClosed,
	CodeEmployeeNotWorking:   FailureStaffNotWorking,
	CodeEmployeeNotAvailable: FailureStaffBusy,
	CodePastDate:             FailurePastDate,
	CodeExceedsBusinessHours: FailureOutsideHours,
}

// Categorize maps a scheduler error code to a user-facing category.
// Unknown codes fall back to FailureGeneric.
func Categorize(code string) FailureCategory {
	if c, ok := codeCategories[code]; ok {
		return c
	}
	return FailureGeneric
}

func (c FailureCategory) Message() string {
	return failureMessages[c]
}

type SubmitResult struct {
	Success   bool            `json:"success"`
	Booking   json.RawMessage `json:"booking,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Category  FailureCategory `json:"category,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func failure(code string) *SubmitResult {
	cat := Categorize(code)
	return &SubmitResult{ErrorCode: code, Category: cat, Message: cat.Message()}
}

// Submit commits the selection as one reservation. authToken is the
// customer's credential and is forwarded as is.
//
// A rejected booking is reported through the result, not the error, and
// leaves the selection untouched so the customer can adjust and retry. The
// error is only set when the flow is not in a submittable state.
func (f *Flow) Submit(ctx context.Context, authToken string) (*SubmitResult, error) {
	f.mu.Lock()
	switch {
	case f.phase == phaseConfirmed:
		f.mu.Unlock()
		return nil, ErrFlowClosed
	case f.phase == phaseSubmitting || f.store.loading:
		f.mu.Unlock()
		return nil, ErrBusy
	}

	sel := f.store.cur.sel.Clone()
	if !sel.HasTime() || len(sel.ServiceIDs) == 0 {
		f.mu.Unlock()
		return nil, ErrIncomplete
	}

	// Local checks first, so a stale day never costs a round-trip.
	if err := f.business.CheckDate(sel.Date, f.now()); err != nil {
		code := CodePastDate
		if errors.Is(err, ErrBusinessClosed) {
			code = CodeBusinessClosed
		}
		res := failure(code)
		f.phase = phaseFailed
		f.result = res
		f.mu.Unlock()
		return res, nil
	}

	f.phase = phaseSubmitting
	f.lastActive = f.now()
	f.mu.Unlock()

	items := make([]scheduler.BookingItem, 0, len(sel.ServiceIDs))
	for _, id := range sel.ServiceIDs {
		items = append(items, scheduler.BookingItem{ServiceID: id, EmployeeID: sel.Employees[id]})
	}
	req := scheduler.SubmitRequest{
		BusinessID: f.scope.BusinessID,
		AuthToken:  authToken,
		Date:       sel.Date,
		StartTime:  *sel.Time,
		Services:   items,
		Notes:      sel.Notes,
	}

	resp, err := f.sched.Submit(ctx, req)

	var res *SubmitResult
	switch {
	case err != nil:
		f.logger.Warn("booking submit failed",
			zap.String("session_id", f.scope.SessionID),
			zap.String("business_id", f.scope.BusinessID),
			zap.Error(err))
		res = failure("")
	case !resp.Success:
		res = failure(resp.ErrorCode)
		f.logger.Info("booking rejected",
			zap.String("session_id", f.scope.SessionID),
			zap.String("error_code", resp.ErrorCode),
			zap.String("error", resp.Error))
	default:
		res = &SubmitResult{Success: true, Booking: resp.Booking}
	}

	f.mu.Lock()
	f.result = res
	if res.Success {
		f.phase = phaseConfirmed
		if err := f.persister.Clear(ctx, f.scope); err != nil {
			f.logger.Warn("failed to clear persisted selection",
				zap.String("session_id", f.scope.SessionID),
				zap.Error(err))
		}
	} else {
		f.phase = phaseFailed
	}
	f.mu.Unlock()

	if res.Success {
		f.logEvent(ctx, EventBookingSubmitted, map[string]any{
			"date":        req.Date,
			"start_time":  req.StartTime,
			"service_ids": sel.ServiceIDs,
		})
	} else {
		f.logEvent(ctx, EventBookingFailed, map[string]any{
			"error_code": res.ErrorCode,
			"category":   res.Category,
		})
	}

	return res, nil
}

package booking

import (
	"errors"

	"github.com/blyssuz/booking-flow/internal/catalog"
)

var (
	ErrNoDate                 = errors.New("no date selected")
	ErrNoTime                 = errors.New("no time selected")
	ErrTimeNotAvailable       = errors.New("time is not in the current availability window")
	ErrLastService            = errors.New("cannot remove the last selected service")
	ErrUnknownService         = errors.New("service is not offered by this business")
	ErrServiceNotSelected     = errors.New("service is not part of the selection")
	ErrServiceAlreadySelected = errors.New("service is already selected")
	ErrEmployeeNotEligible    = errors.New("employee cannot perform this service at the selected time")
	ErrNoEligibleStaff        = errors.New("no eligible staff for this service at the selected time")
	ErrIncomplete             = errors.New("selection is incomplete")
	ErrNoServices             = errors.New("at least one service is required")
	ErrStaleResult            = errors.New("result discarded, a newer change is in progress")
	ErrBusy                   = errors.New("selection is being updated")
	ErrFlowClosed             = errors.New("booking already confirmed")
	ErrFlowNotFound           = errors.New("booking flow not found")

	// ErrDegraded wraps a failed scheduler query. The selection is left in
	// its last valid state and the caller should show no slots or staff.
	ErrDegraded = errors.New("availability temporarily unavailable")

	ErrDateInPast     = catalog.ErrDateInPast
	ErrBusinessClosed = catalog.ErrBusinessClosed
)

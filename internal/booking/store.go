package booking

import (
	"slices"

	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

// snapshot is everything a reconciliation reads and replaces as one unit:
// the selection plus the server data it was validated against.
type snapshot struct {
	sel    selection.Selection
	window *scheduler.Window // nil until fetched for the current date and services
	slots  []scheduler.ServiceSlot
}

func (s snapshot) clone() snapshot {
	out := snapshot{sel: s.sel.Clone()}
	if s.window != nil {
		w := s.window.Clone()
		out.window = &w
	}
	if s.slots != nil {
		out.slots = slices.Clone(s.slots)
	}
	return out
}

type NoticeKind string

const (
	NoticeTimeCleared        NoticeKind = "time_cleared"
	NoticeNoEligibleStaff    NoticeKind = "no_eligible_staff"
	NoticeServiceUnavailable NoticeKind = "service_unavailable"
)

// Notice is a non-fatal condition produced by the last settled operation.
type Notice struct {
	Kind       NoticeKind `json:"kind"`
	ServiceIDs []string   `json:"service_ids,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	// TimeCleared is set when the operation also dropped the held time.
	TimeCleared bool `json:"time_cleared,omitempty"`
}

// store holds the current snapshot and the transient UI flags. Only Flow
// writes to it, always under Flow.mu.
type store struct {
	cur     snapshot
	loading bool
	err     error
	notice  *Notice
}

func (s *store) begin() snapshot {
	s.loading = true
	return s.cur.clone()
}

func (s *store) settle(next snapshot, softErr error, notice *Notice) {
	// Notes are edited locally and never reconciled, so a settling query
	// must not overwrite a note typed while it was in flight.
	next.sel.Notes = s.cur.sel.Notes
	s.cur = next
	s.loading = false
	s.err = softErr
	s.notice = notice
}

// fail records a soft failure and leaves the current snapshot untouched.
func (s *store) fail(err error) {
	s.loading = false
	s.err = err
	s.notice = nil
}

// unavailableNotice reports services that came back with nobody to perform them.
func unavailableNotice(serviceIDs []string, slots []scheduler.ServiceSlot) *Notice {
	var ids []string
	var reason string
	for _, id := range serviceIDs {
		slot, ok := scheduler.FindSlot(slots, id)
		if ok && slot.Bookable() {
			continue
		}
		ids = append(ids, id)
		if reason == "" && ok {
			reason = slot.Reason
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return &Notice{Kind: NoticeServiceUnavailable, ServiceIDs: ids, Reason: reason}
}

// assignEmployees builds the staff map for serviceIDs from fresh slots.
// A previous choice is kept when it is "any" or still offered; otherwise
// the server's first candidate wins. Services nobody can perform get nil.
func assignEmployees(serviceIDs []string, slots []scheduler.ServiceSlot, prev map[string]*string) map[string]*string {
	out := make(map[string]*string, len(serviceIDs))
	for _, id := range serviceIDs {
		slot, ok := scheduler.FindSlot(slots, id)
		if !ok || !slot.Bookable() {
			out[id] = nil
			continue
		}
		if p, had := prev[id]; had {
			if p == nil {
				out[id] = nil
				continue
			}
			if _, eligible := slot.Employee(*p); eligible {
				v := *p
				out[id] = &v
				continue
			}
		}
		first := slot.Employees[0].ID
		out[id] = &first
	}
	return out
}

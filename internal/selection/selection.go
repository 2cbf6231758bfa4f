package selection

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// DateLayout is the wire and storage encoding of a selection date.
const DateLayout = "2006-01-02"

var (
	ErrNoServices       = errors.New("selection must contain at least one service")
	ErrDuplicateService = errors.New("selection contains a duplicate service")
	ErrAssignmentKeys   = errors.New("employee assignments do not match selected services")
	ErrInvalidDate      = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidTime      = errors.New("time must be between 0 and 86399 seconds")
)

// Selection is the customer's in-progress booking choice.
//
// Time is seconds since local midnight; nil means no time has been chosen.
// Employees maps every selected service to a staff id, where a nil value
// means "any employee". The map is only populated while Time is set.
type Selection struct {
	Date       string             `json:"date,omitempty"`
	Time       *int               `json:"time"`
	ServiceIDs []string           `json:"service_ids"`
	Employees  map[string]*string `json:"employee_assignments"`
	Notes      string             `json:"notes,omitempty"`
}

func New(serviceIDs []string) Selection {
	return Selection{
		ServiceIDs: slices.Clone(serviceIDs),
		Employees:  map[string]*string{},
	}
}

func (s Selection) HasDate() bool { return s.Date != "" }

func (s Selection) HasTime() bool { return s.Time != nil }

func (s Selection) HasService(id string) bool {
	return slices.Contains(s.ServiceIDs, id)
}

// Clone returns a deep copy so callers can snapshot and roll back.
func (s Selection) Clone() Selection {
	out := Selection{
		Date:       s.Date,
		ServiceIDs: slices.Clone(s.ServiceIDs),
		Employees:  make(map[string]*string, len(s.Employees)),
		Notes:      s.Notes,
	}
	if s.Time != nil {
		t := *s.Time
		out.Time = &t
	}
	for k, v := range s.Employees {
		out.Employees[k] = cloneID(v)
	}
	return out
}

// Equal reports whether two selections hold the same choices.
func (s Selection) Equal(o Selection) bool {
	if s.Date != o.Date || s.Notes != o.Notes {
		return false
	}
	if (s.Time == nil) != (o.Time == nil) || (s.Time != nil && *s.Time != *o.Time) {
		return false
	}
	if !slices.Equal(s.ServiceIDs, o.ServiceIDs) || len(s.Employees) != len(o.Employees) {
		return false
	}
	for k, v := range s.Employees {
		w, ok := o.Employees[k]
		if !ok || (v == nil) != (w == nil) || (v != nil && *v != *w) {
			return false
		}
	}
	return true
}

// ClearTime drops the chosen time together with every staff assignment.
func (s *Selection) ClearTime() {
	s.Time = nil
	s.Employees = map[string]*string{}
}

// Validate checks the structural invariants that do not need server data:
// at least one distinct service, and assignment keys matching the services
// whenever a time is held.
func (s Selection) Validate() error {
	if len(s.ServiceIDs) == 0 {
		return ErrNoServices
	}
	seen := make(map[string]struct{}, len(s.ServiceIDs))
	for _, id := range s.ServiceIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateService, id)
		}
		seen[id] = struct{}{}
	}
	if s.Date != "" {
		if _, err := ParseDate(s.Date, time.UTC); err != nil {
			return err
		}
	}
	if s.Time == nil {
		return nil
	}
	if err := ValidateTime(*s.Time); err != nil {
		return err
	}
	if len(s.Employees) != len(s.ServiceIDs) {
		return ErrAssignmentKeys
	}
	for _, id := range s.ServiceIDs {
		if _, ok := s.Employees[id]; !ok {
			return fmt.Errorf("%w: missing %s", ErrAssignmentKeys, id)
		}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD string as midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

func ValidateTime(seconds int) error {
	if seconds < 0 || seconds >= 24*60*60 {
		return ErrInvalidTime
	}
	return nil
}

func cloneID(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

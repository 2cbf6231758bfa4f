package scheduler

import (
	"encoding/json"
	"slices"
)

// Window is the set of valid start times for one (date, services) pair.
// Times are seconds since local midnight.
type Window struct {
	AvailableStartTimes []int `json:"available_start_times"`
	SlotsWithDiscounts  []int `json:"slots_with_discounts"`
}

func (w Window) Contains(startTime int) bool {
	return slices.Contains(w.AvailableStartTimes, startTime)
}

func (w Window) Discounted(startTime int) bool {
	return slices.Contains(w.SlotsWithDiscounts, startTime)
}

func (w Window) Empty() bool { return len(w.AvailableStartTimes) == 0 }

func (w Window) Clone() Window {
	return Window{
		AvailableStartTimes: slices.Clone(w.AvailableStartTimes),
		SlotsWithDiscounts:  slices.Clone(w.SlotsWithDiscounts),
	}
}

type Discount struct {
	Type  string  `json:"type,omitempty"`
	Value float64 `json:"value,omitempty"`
	Name  string  `json:"name,omitempty"`
}

// Employee is one staff candidate for a service at a given start time,
// with the price and duration that employee charges.
type Employee struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Price           int64     `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	OriginalPrice   *int64    `json:"original_price,omitempty"`
	FinalPrice      *int64    `json:"final_price,omitempty"`
	Discount        *Discount `json:"discount,omitempty"`
}

// ServiceSlot is the per-service answer of an assignment query. Employees
// keeps the server's order; the first entry is the default pick.
type ServiceSlot struct {
	ServiceID   string     `json:"service_id"`
	Name        string     `json:"name"`
	StartTime   int        `json:"start_time"`
	Employees   []Employee `json:"employees"`
	Unavailable bool       `json:"unavailable,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// Bookable reports whether at least one employee can perform the service.
func (s ServiceSlot) Bookable() bool {
	return !s.Unavailable && len(s.Employees) > 0
}

func (s ServiceSlot) Employee(id string) (Employee, bool) {
	for _, e := range s.Employees {
		if e.ID == id {
			return e, true
		}
	}
	return Employee{}, false
}

// FindSlot returns the entry for serviceID, if the server returned one.
func FindSlot(slots []ServiceSlot, serviceID string) (ServiceSlot, bool) {
	for _, s := range slots {
		if s.ServiceID == serviceID {
			return s, true
		}
	}
	return ServiceSlot{}, false
}

type assignmentsResponse struct {
	Services []ServiceSlot `json:"services"`
}

type WindowQuery struct {
	BusinessID string
	Date       string
	ServiceIDs []string
}

type AssignmentQuery struct {
	BusinessID    string
	Date          string
	ServiceIDs    []string
	StartTime     int
	CustomerPhone string
}

type BookingItem struct {
	ServiceID  string  `json:"service_id"`
	EmployeeID *string `json:"employee_id"`
}

type SubmitRequest struct {
	BusinessID string        `json:"-"`
	AuthToken  string        `json:"-"`
	Date       string        `json:"date"`
	StartTime  int           `json:"start_time"`
	Services   []BookingItem `json:"services"`
	Notes      string        `json:"notes,omitempty"`
}

type SubmitResponse struct {
	Success   bool            `json:"success"`
	Booking   json.RawMessage `json:"booking,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
}

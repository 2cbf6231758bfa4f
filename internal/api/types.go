package api

import (
	"github.com/blyssuz/booking-flow/internal/booking"
)

type StartFlowRequest struct {
	BusinessID    string   `json:"business_id"`
	ServiceIDs    []string `json:"service_ids"`
	SessionID     string   `json:"session_id,omitempty"`
	CustomerPhone string   `json:"customer_phone,omitempty"`
}

type SelectDateRequest struct {
	Date string `json:"date"`
}

type SelectTimeRequest struct {
	Time *int `json:"time"`
}

type AddServiceRequest struct {
	ServiceID string `json:"service_id"`
}

// ChooseEmployeeRequest takes a null employee_id as "any employee".
type ChooseEmployeeRequest struct {
	EmployeeID *string `json:"employee_id"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type SubmitResponse struct {
	Result *booking.SubmitResult `json:"result"`
	Flow   booking.View          `json:"flow"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

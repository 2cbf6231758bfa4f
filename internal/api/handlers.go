package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/booking"
	"github.com/blyssuz/booking-flow/internal/catalog"
	redisclient "github.com/blyssuz/booking-flow/internal/redis"
	"github.com/blyssuz/booking-flow/internal/selection"
)

const maxNotesLength = 1000

type flowHandlers struct {
	registry *booking.Registry
	locker   redisclient.Locker
	logger   *zap.Logger
}

// mutation decodes a request into the operation to run on the flow. Decoding
// happens before the session lock is taken.
type mutation func(r *http.Request) (func(ctx context.Context, f *booking.Flow) error, error)

func (h *flowHandlers) start(w http.ResponseWriter, r *http.Request) {
	var req StartFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if req.BusinessID == "" {
		writeError(w, http.StatusBadRequest, "invalid_business_id", "business_id is required")
		return
	}

	p := booking.StartParams{
		SessionID:     req.SessionID,
		BusinessID:    req.BusinessID,
		ServiceIDs:    req.ServiceIDs,
		CustomerPhone: req.CustomerPhone,
	}

	var flow *booking.Flow
	start := func(ctx context.Context) error {
		var err error
		flow, err = h.registry.Start(ctx, p)
		return err
	}

	var err error
	if p.SessionID != "" {
		err = h.locker.WithFlowLock(r.Context(), p.SessionID, start)
	} else {
		err = start(r.Context())
	}
	if err != nil {
		h.handleFlowError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, flow.View())
}

func (h *flowHandlers) get(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, flow.View())
}

func (h *flowHandlers) mutate(m mutation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flow, ok := h.flow(w, r)
		if !ok {
			return
		}

		apply, err := m(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		err = h.locker.WithFlowLock(r.Context(), flow.Scope().SessionID, func(ctx context.Context) error {
			return apply(ctx, flow)
		})

		// soft failures still changed (or deliberately kept) the flow; the
		// view carries the condition
		if err == nil || errors.Is(err, booking.ErrDegraded) || errors.Is(err, booking.ErrNoEligibleStaff) {
			writeJSON(w, http.StatusOK, flow.View())
			return
		}
		h.handleFlowError(w, r, err)
	}
}

func (h *flowHandlers) submit(w http.ResponseWriter, r *http.Request) {
	flow, ok := h.flow(w, r)
	if !ok {
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))

	var res *booking.SubmitResult
	err := h.locker.WithFlowLock(r.Context(), flow.Scope().SessionID, func(ctx context.Context) error {
		var err error
		res, err = flow.Submit(ctx, token)
		return err
	})
	if err != nil {
		h.handleFlowError(w, r, err)
		return
	}

	status := http.StatusCreated
	if !res.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, SubmitResponse{Result: res, Flow: flow.View()})
}

func (h *flowHandlers) flow(w http.ResponseWriter, r *http.Request) (*booking.Flow, bool) {
	flow, err := h.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.handleFlowError(w, r, err)
		return nil, false
	}
	return flow, true
}

func selectDate(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	var req SelectDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("could not parse JSON")
	}
	if req.Date == "" {
		return nil, errors.New("date is required")
	}
	return func(ctx context.Context, f *booking.Flow) error {
		return f.SelectDate(ctx, req.Date)
	}, nil
}

func selectTime(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	var req SelectTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("could not parse JSON")
	}
	if req.Time == nil {
		return nil, errors.New("time is required")
	}
	return func(ctx context.Context, f *booking.Flow) error {
		return f.SelectTime(ctx, *req.Time)
	}, nil
}

func addService(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	var req AddServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("could not parse JSON")
	}
	if req.ServiceID == "" {
		return nil, errors.New("service_id is required")
	}
	return func(ctx context.Context, f *booking.Flow) error {
		return f.AddService(ctx, req.ServiceID)
	}, nil
}

func removeService(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	serviceID := chi.URLParam(r, "serviceID")
	return func(ctx context.Context, f *booking.Flow) error {
		return f.RemoveService(ctx, serviceID)
	}, nil
}

func chooseEmployee(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	var req ChooseEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("could not parse JSON")
	}
	serviceID := chi.URLParam(r, "serviceID")
	return func(ctx context.Context, f *booking.Flow) error {
		return f.ChooseEmployee(ctx, serviceID, req.EmployeeID)
	}, nil
}

func setNotes(r *http.Request) (func(context.Context, *booking.Flow) error, error) {
	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.New("could not parse JSON")
	}
	if len(req.Notes) > maxNotesLength {
		return nil, errors.New("notes are too long")
	}
	return func(ctx context.Context, f *booking.Flow) error {
		return f.SetNotes(ctx, req.Notes)
	}, nil
}

func (h *flowHandlers) handleFlowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrFlowNotFound):
		writeError(w, http.StatusNotFound, "flow_not_found", err.Error())
	case errors.Is(err, catalog.ErrBusinessNotFound):
		writeError(w, http.StatusNotFound, "business_not_found", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired),
		errors.Is(err, booking.ErrBusy):
		writeError(w, http.StatusConflict, "flow_busy", "selection is being updated, please retry shortly")
	case errors.Is(err, booking.ErrStaleResult):
		writeError(w, http.StatusConflict, "stale_result", err.Error())
	case errors.Is(err, booking.ErrFlowClosed):
		writeError(w, http.StatusConflict, "flow_closed", err.Error())
	case errors.Is(err, booking.ErrDateInPast):
		writeError(w, http.StatusUnprocessableEntity, "date_in_past", err.Error())
	case errors.Is(err, booking.ErrBusinessClosed):
		writeError(w, http.StatusUnprocessableEntity, "business_closed", err.Error())
	case errors.Is(err, booking.ErrNoDate):
		writeError(w, http.StatusUnprocessableEntity, "no_date", err.Error())
	case errors.Is(err, booking.ErrNoTime):
		writeError(w, http.StatusUnprocessableEntity, "no_time", err.Error())
	case errors.Is(err, booking.ErrTimeNotAvailable):
		writeError(w, http.StatusUnprocessableEntity, "time_not_available", err.Error())
	case errors.Is(err, booking.ErrLastService):
		writeError(w, http.StatusUnprocessableEntity, "last_service", err.Error())
	case errors.Is(err, booking.ErrUnknownService):
		writeError(w, http.StatusUnprocessableEntity, "unknown_service", err.Error())
	case errors.Is(err, booking.ErrServiceNotSelected):
		writeError(w, http.StatusUnprocessableEntity, "service_not_selected", err.Error())
	case errors.Is(err, booking.ErrServiceAlreadySelected):
		writeError(w, http.StatusUnprocessableEntity, "service_already_selected", err.Error())
	case errors.Is(err, booking.ErrEmployeeNotEligible):
		writeError(w, http.StatusUnprocessableEntity, "employee_not_eligible", err.Error())
	case errors.Is(err, booking.ErrIncomplete):
		writeError(w, http.StatusUnprocessableEntity, "incomplete_selection", err.Error())
	case errors.Is(err, booking.ErrNoServices):
		writeError(w, http.StatusUnprocessableEntity, "no_services", err.Error())
	case errors.Is(err, selection.ErrInvalidDate),
		errors.Is(err, selection.ErrInvalidTime):
		writeError(w, http.StatusBadRequest, "invalid_value", err.Error())
	default:
		h.logger.Error("unhandled flow error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

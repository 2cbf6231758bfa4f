package booking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blyssuz/booking-flow/internal/scheduler"
)

func TestSubmit_RejectedKeepsSelectionAndPersistence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := readyFlow(t, h)
	before := f.Selection()
	h.sched.submitResp = scheduler.SubmitResponse{Success: false, ErrorCode: CodeSlotNotAvailable}

	res, err := f.Submit(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodeSlotNotAvailable, res.ErrorCode)
	assert.Equal(t, FailureSlotTaken, res.Category)
	assert.Equal(t, FailureSlotTaken.Message(), res.Message)

	assert.True(t, before.Equal(f.Selection()))
	assert.Equal(t, StateFailed, f.State())
	require.NotNil(t, h.persisted(t))
	assert.True(t, before.Equal(*h.persisted(t)))

	// the customer can adjust and retry
	require.NoError(t, f.SelectTime(ctx, 36000))
	assert.Equal(t, StateReady, f.State())

	events := h.repo.Events()
	assert.Equal(t, EventBookingFailed, events[len(events)-1].EventType)
}

func TestSubmit_SuccessClearsPersistence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	f := readyFlow(t, h)
	require.NoError(t, f.ChooseEmployee(ctx, "svc_b", nil))
	require.NoError(t, f.SetNotes(ctx, "allergic to latex"))
	h.sched.submitResp = scheduler.SubmitResponse{Success: true, Booking: json.RawMessage(`{"id":"bk_1"}`)}

	res, err := f.Submit(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.JSONEq(t, `{"id":"bk_1"}`, string(res.Booking))
	assert.Equal(t, StateConfirmed, f.State())
	assert.Nil(t, h.persisted(t))

	req := h.sched.lastSubmit
	assert.Equal(t, "biz_1", req.BusinessID)
	assert.Equal(t, "tok", req.AuthToken)
	assert.Equal(t, day, req.Date)
	assert.Equal(t, 36000, req.StartTime)
	assert.Equal(t, "allergic to latex", req.Notes)
	require.Len(t, req.Services, 2)
	assert.Equal(t, "svc_a", req.Services[0].ServiceID)
	assert.Equal(t, "emp_1", *req.Services[0].EmployeeID)
	assert.Equal(t, "svc_b", req.Services[1].ServiceID)
	assert.Nil(t, req.Services[1].EmployeeID)

	assert.ErrorIs(t, f.SelectDate(ctx, day), ErrFlowClosed)
	_, err = f.Submit(ctx, "tok")
	assert.ErrorIs(t, err, ErrFlowClosed)

	events := h.repo.Events()
	assert.Equal(t, EventBookingSubmitted, events[len(events)-1].EventType)
}

func TestSubmit_Incomplete(t *testing.T) {
	h := newHarness(t)
	f := h.start(t, "svc_a")

	_, err := f.Submit(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrIncomplete)

	_, _, submitCalls := h.sched.calls()
	assert.Zero(t, submitCalls)
}

func TestSubmit_LocalDateChecksSkipScheduler(t *testing.T) {
	h := newHarness(t)
	f := readyFlow(t, h)
	h.now = h.now.Add(48 * time.Hour)

	res, err := f.Submit(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, CodePastDate, res.ErrorCode)
	assert.Equal(t, FailurePastDate, res.Category)

	_, _, submitCalls := h.sched.calls()
	assert.Zero(t, submitCalls)
}

func TestSubmit_TransportFailureIsGeneric(t *testing.T) {
	h := newHarness(t)
	f := readyFlow(t, h)
	h.sched.submitErr = scheduler.ErrUnavailable

	res, err := f.Submit(context.Background(), "tok")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, FailureGeneric, res.Category)
	assert.NotNil(t, h.persisted(t))
}

func TestCategorize(t *testing.T) {
	cases := map[string]FailureCategory{
		CodeUserTimeConflict:     FailureTimeConflict,
		CodeBookingLimitReached:  FailureLimitReached,
		CodeSlotNotAvailable:     FailureSlotTaken,
		CodeNoEmployeeAvailable:  FailureNoStaff,
		CodeBusinessClosed:       FailureBusinessClosed,
		CodeEmployeeNotWorking:   FailureStaffNotWorking,
		CodeEmployeeNotAvailable: FailureStaffBusy,
		CodePastDate:             FailurePastDate,
		CodeExceedsBusinessHours: FailureOutsideHours,
		"SOMETHING_NEW":          FailureGeneric,
		"":                       FailureGeneric,
	}
	for code, want := range cases {
		assert.Equal(t, want, Categorize(code), code)
		assert.NotEmpty(t, want.Message())
	}
}

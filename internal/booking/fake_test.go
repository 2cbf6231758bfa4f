package booking

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blyssuz/booking-flow/internal/catalog"
	"github.com/blyssuz/booking-flow/internal/scheduler"
	"github.com/blyssuz/booking-flow/internal/selection"
)

var errSchedulerDown = errors.New("connection refused")

// fakeScheduler answers from fixed tables keyed by date and service set.
// Unknown keys produce an empty window or no slots.
type fakeScheduler struct {
	mu sync.Mutex

	windows map[string]scheduler.Window
	slots   map[string][]scheduler.ServiceSlot

	windowErr error
	assignErr error

	submitResp scheduler.SubmitResponse
	submitErr  error
	lastSubmit scheduler.SubmitRequest

	windowCalls int
	assignCalls int
	submitCalls int

	// onAssign runs once, inside the next assignment query.
	onAssign func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		windows: make(map[string]scheduler.Window),
		slots:   make(map[string][]scheduler.ServiceSlot),
	}
}

func windowKey(date string, ids []string) string {
	return date + "|" + strings.Join(ids, ",")
}

func slotsKey(date string, ids []string, startTime int) string {
	return windowKey(date, ids) + "|" + strconv.Itoa(startTime)
}

func (s *fakeScheduler) setWindow(date string, ids []string, times ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[windowKey(date, ids)] = scheduler.Window{AvailableStartTimes: times, SlotsWithDiscounts: []int{}}
}

func (s *fakeScheduler) setSlots(date string, ids []string, startTime int, slots ...scheduler.ServiceSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slotsKey(date, ids, startTime)] = slots
}

func (s *fakeScheduler) QueryWindow(_ context.Context, q scheduler.WindowQuery) (scheduler.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windowCalls++
	if s.windowErr != nil {
		return scheduler.Window{}, s.windowErr
	}
	return s.windows[windowKey(q.Date, q.ServiceIDs)].Clone(), nil
}

func (s *fakeScheduler) QueryAssignments(_ context.Context, q scheduler.AssignmentQuery) ([]scheduler.ServiceSlot, error) {
	s.mu.Lock()
	hook := s.onAssign
	s.onAssign = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignCalls++
	if s.assignErr != nil {
		return nil, s.assignErr
	}
	return s.slots[slotsKey(q.Date, q.ServiceIDs, q.StartTime)], nil
}

func (s *fakeScheduler) Submit(_ context.Context, req scheduler.SubmitRequest) (scheduler.SubmitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitCalls++
	s.lastSubmit = req
	return s.submitResp, s.submitErr
}

func (s *fakeScheduler) calls() (window, assign, submit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowCalls, s.assignCalls, s.submitCalls
}

func emp(id string, price int64) scheduler.Employee {
	return scheduler.Employee{ID: id, Name: "Employee " + id, Price: price, DurationMinutes: 30}
}

func slot(serviceID string, employees ...scheduler.Employee) scheduler.ServiceSlot {
	return scheduler.ServiceSlot{ServiceID: serviceID, Name: "Service " + serviceID, Employees: employees}
}

func ptr[T any](v T) *T { return &v }

// 2025-04-09 is a Wednesday; the salon is closed on Sundays.
var testNow = time.Date(2025, 4, 9, 8, 0, 0, 0, time.UTC)

func testBusiness() catalog.Business {
	hours := map[time.Weekday]catalog.DayHours{}
	for d := time.Monday; d <= time.Saturday; d++ {
		hours[d] = catalog.DayHours{Weekday: d, OpenSeconds: 9 * 3600, CloseSeconds: 20 * 3600}
	}
	return catalog.Business{
		ID:       "biz_1",
		Name:     "Salon",
		Timezone: "UTC",
		Hours:    hours,
		Services: []catalog.Service{
			{ID: "svc_a", Name: "Haircut", Price: 100000, DurationMinutes: 45, Active: true},
			{ID: "svc_b", Name: "Beard", Price: 50000, DurationMinutes: 20, Active: true},
			{ID: "svc_c", Name: "Coloring", Price: 200000, DurationMinutes: 90, Active: true},
			{ID: "svc_d", Name: "Massage", Price: 150000, DurationMinutes: 60, Active: true},
		},
	}
}

type harness struct {
	sched     *fakeScheduler
	repo      *catalog.MemoryRepository
	persister *selection.MemoryPersister
	now       time.Time
	deps      Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sched: newFakeScheduler(),
		repo:  catalog.NewMemoryRepository(testBusiness()),
		now:   testNow,
	}
	h.persister = selection.NewMemoryPersister(time.Hour).WithClock(func() time.Time { return h.now })
	h.deps = Deps{
		Scheduler: h.sched,
		Catalog:   h.repo,
		Persister: h.persister,
		Now:       func() time.Time { return h.now },
	}
	return h
}

func (h *harness) start(t *testing.T, serviceIDs ...string) *Flow {
	t.Helper()
	f, err := Start(context.Background(), h.deps, StartParams{
		SessionID:  "sess_1",
		BusinessID: "biz_1",
		ServiceIDs: serviceIDs,
	})
	require.NoError(t, err)
	return f
}

func (h *harness) persisted(t *testing.T) *selection.Selection {
	t.Helper()
	sel, err := h.persister.Load(context.Background(), selection.Scope{SessionID: "sess_1", BusinessID: "biz_1"})
	require.NoError(t, err)
	return sel
}

// requireConsistent checks that the flow's selection agrees with the
// server data it holds: assignment keys match the services while a time
// is held, the time is in the window, and named staff are candidates.
func requireConsistent(t *testing.T, f *Flow) {
	t.Helper()
	v := f.View()
	sel := v.Selection

	require.NoError(t, sel.Validate())
	require.NotEmpty(t, sel.ServiceIDs)

	if !sel.HasTime() {
		return
	}
	require.NotNil(t, v.Window, "time held without a window")
	require.True(t, v.Window.Contains(*sel.Time), "time %d not in window %v", *sel.Time, v.Window.AvailableStartTimes)

	for id, e := range sel.Employees {
		if e == nil {
			continue
		}
		s, ok := scheduler.FindSlot(v.Assignments, id)
		require.True(t, ok, "no slot for %s", id)
		_, eligible := s.Employee(*e)
		require.True(t, eligible, "employee %s not a candidate for %s", *e, id)
	}
}

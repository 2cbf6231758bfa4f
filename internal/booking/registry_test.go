package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StartGetSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.sched.setWindow(day, []string{"svc_a"}, 36000)
	reg := NewRegistry(h.deps, 30*time.Minute)

	f, err := reg.Start(ctx, StartParams{BusinessID: "biz_1", ServiceIDs: []string{"svc_a"}})
	require.NoError(t, err)
	sessionID := f.Scope().SessionID
	assert.NotEmpty(t, sessionID)

	got, err := reg.Get(sessionID)
	require.NoError(t, err)
	assert.Same(t, f, got)

	again, err := reg.Start(ctx, StartParams{SessionID: sessionID, BusinessID: "biz_1", ServiceIDs: []string{"svc_b"}})
	require.NoError(t, err)
	assert.Same(t, f, again)

	require.NoError(t, f.SelectDate(ctx, day))

	assert.Zero(t, reg.Sweep(h.now.Add(10*time.Minute)))
	assert.Equal(t, 1, reg.Sweep(h.now.Add(31*time.Minute)))

	_, err = reg.Get(sessionID)
	assert.ErrorIs(t, err, ErrFlowNotFound)

	// an evicted session comes back through the restore routine
	restored, err := reg.Start(ctx, StartParams{SessionID: sessionID, BusinessID: "biz_1", ServiceIDs: []string{"svc_b"}})
	require.NoError(t, err)
	assert.NotSame(t, f, restored)
	sel := restored.Selection()
	assert.Equal(t, []string{"svc_a"}, sel.ServiceIDs)
	assert.Equal(t, day, sel.Date)
}

func TestRegistry_StartUnknownBusiness(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, time.Minute)

	_, err := reg.Start(context.Background(), StartParams{BusinessID: "nope", ServiceIDs: []string{"svc_a"}})
	assert.Error(t, err)
	assert.Zero(t, reg.Len())
}

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blyssuz/booking-flow/internal/selection"
)

func salon() Business {
	return Business{
		ID:       "biz_1",
		Name:     "Salon",
		Timezone: "Asia/Tashkent",
		Hours: map[time.Weekday]DayHours{
			time.Monday:   {Weekday: time.Monday, OpenSeconds: 9 * 3600, CloseSeconds: 20 * 3600},
			time.Thursday: {Weekday: time.Thursday, OpenSeconds: 9 * 3600, CloseSeconds: 20 * 3600},
			time.Saturday: {Weekday: time.Saturday, OpenSeconds: 10 * 3600, CloseSeconds: 10 * 3600},
		},
		Services: []Service{
			{ID: "svc_a", Name: "Haircut", Price: 100000, DurationMinutes: 45, Active: true},
			{ID: "svc_b", Name: "Beard", Price: 50000, DurationMinutes: 20, Active: true},
			{ID: "svc_old", Name: "Retired", Price: 1, DurationMinutes: 10, Active: false},
		},
	}
}

func TestBusiness_CheckDate(t *testing.T) {
	b := salon()
	// 2025-04-09 is a Wednesday.
	now := time.Date(2025, 4, 9, 8, 0, 0, 0, time.UTC)

	assert.NoError(t, b.CheckDate("2025-04-10", now))
	assert.ErrorIs(t, b.CheckDate("2025-04-08", now), ErrDateInPast)
	assert.ErrorIs(t, b.CheckDate("2025-04-11", now), ErrBusinessClosed)
	assert.ErrorIs(t, b.CheckDate("2025-04-12", now), ErrBusinessClosed, "zero-length hours count as closed")
	assert.ErrorIs(t, b.CheckDate("10.04.2025", now), selection.ErrInvalidDate)
}

func TestBusiness_CheckDate_UsesBusinessTimezone(t *testing.T) {
	b := salon()
	// 20:30 UTC on the 9th is already the 10th in Tashkent (UTC+5).
	now := time.Date(2025, 4, 9, 20, 30, 0, 0, time.UTC)
	assert.NoError(t, b.CheckDate("2025-04-10", now))

	b.Hours[time.Wednesday] = DayHours{Weekday: time.Wednesday, OpenSeconds: 0, CloseSeconds: 3600}
	assert.ErrorIs(t, b.CheckDate("2025-04-09", now), ErrDateInPast)
}

func TestBusiness_KnownServices(t *testing.T) {
	b := salon()
	got := b.KnownServices([]string{"svc_b", "ghost", "svc_old", "svc_a", "svc_b"})
	assert.Equal(t, []string{"svc_b", "svc_a"}, got)
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(salon())

	b, err := repo.GetBusiness(ctx, "biz_1")
	require.NoError(t, err)
	assert.Equal(t, "Salon", b.Name)

	_, err = repo.GetBusiness(ctx, "missing")
	assert.ErrorIs(t, err, ErrBusinessNotFound)

	require.NoError(t, repo.InsertEvent(ctx, EventLog{EventType: "FLOW_STARTED", BusinessID: "biz_1"}))
	assert.Len(t, repo.Events(), 1)
}

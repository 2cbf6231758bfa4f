package catalog

import (
	"time"
	_ "time/tzdata"

	"github.com/blyssuz/booking-flow/internal/selection"
)

type Service struct {
	ID              string
	BusinessID      string
	Name            string
	Price           int64
	DurationMinutes int
	Active          bool
}

// DayHours is the opening interval of one weekday, in seconds since local
// midnight. A weekday without an entry is a closed day.
type DayHours struct {
	Weekday      time.Weekday
	OpenSeconds  int
	CloseSeconds int
}

type Business struct {
	ID       string
	Name     string
	Timezone string
	Hours    map[time.Weekday]DayHours
	Services []Service
}

type EventLog struct {
	ID         int64
	EventType  string
	BusinessID string
	SessionID  string
	Payload    []byte
	CreatedAt  time.Time
}

func (b Business) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b Business) Service(id string) (Service, bool) {
	for _, s := range b.Services {
		if s.ID == id && s.Active {
			return s, true
		}
	}
	return Service{}, false
}

// KnownServices keeps the ids that are active in the catalog, in order.
func (b Business) KnownServices(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		if _, ok := b.Service(id); ok {
			out = append(out, id)
			seen[id] = struct{}{}
		}
	}
	return out
}

func (b Business) OpenOn(weekday time.Weekday) bool {
	h, ok := b.Hours[weekday]
	return ok && h.CloseSeconds > h.OpenSeconds
}

// CheckDate runs the local checks done before any scheduler round-trip:
// the date must parse, must not be before today in the business timezone,
// and must fall on an open weekday.
func (b Business) CheckDate(date string, now time.Time) error {
	loc := b.Location()
	day, err := selection.ParseDate(date, loc)
	if err != nil {
		return err
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return ErrDateInPast
	}
	if !b.OpenOn(day.Weekday()) {
		return ErrBusinessClosed
	}
	return nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanBusiness(row pgx.Row) (*Business, error) {
	var b Business
	var tz *string

	err := row.Scan(&b.ID, &b.Name, &tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}

	if tz != nil {
		b.Timezone = *tz
	}
	b.Hours = make(map[time.Weekday]DayHours)
	return &b, nil
}

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(
		&s.ID,
		&s.BusinessID,
		&s.Name,
		&s.Price,
		&s.DurationMinutes,
		&s.Active,
	)
	return s, err
}

// Interface methods

func (r *PgRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, timezone
		FROM businesses
		WHERE id = $1
	`, id)
	b, err := scanBusiness(row)
	if err != nil {
		return nil, err
	}

	if err := r.loadHours(ctx, b); err != nil {
		return nil, fmt.Errorf("load business hours: %w", err)
	}
	if err := r.loadServices(ctx, b); err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	return b, nil
}

func (r *PgRepository) loadHours(ctx context.Context, b *Business) error {
	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_seconds, close_seconds
		FROM business_hours
		WHERE business_id = $1
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var h DayHours
		var weekday int
		if err := rows.Scan(&weekday, &h.OpenSeconds, &h.CloseSeconds); err != nil {
			return err
		}
		h.Weekday = time.Weekday(weekday)
		b.Hours[h.Weekday] = h
	}

	return rows.Err()
}

func (r *PgRepository) loadServices(ctx context.Context, b *Business) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, name, price, duration_minutes, active
		FROM services
		WHERE business_id = $1
		ORDER BY sort_order, name
	`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return err
		}
		b.Services = append(b.Services, s)
	}

	return rows.Err()
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, business_id, session_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.BusinessID, nullableString(ev.SessionID), ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

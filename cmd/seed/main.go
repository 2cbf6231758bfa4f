package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blyssuz/booking-flow/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS businesses (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS business_hours (
	business_id   TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	weekday       SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	open_seconds  INT NOT NULL,
	close_seconds INT NOT NULL,
	PRIMARY KEY (business_id, weekday)
);

CREATE TABLE IF NOT EXISTS services (
	id               TEXT PRIMARY KEY,
	business_id      TEXT NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
	name             TEXT NOT NULL,
	price            BIGINT NOT NULL,
	duration_minutes INT NOT NULL,
	active           BOOLEAN NOT NULL DEFAULT true,
	sort_order       INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS event_logs (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT NOT NULL,
	business_id TEXT,
	session_id  TEXT,
	payload     JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_event_logs_session ON event_logs (session_id, created_at);
`

var serviceNames = []string{
	"Haircut",
	"Beard trim",
	"Hair coloring",
	"Manicure",
	"Pedicure",
	"Facial",
	"Massage",
	"Eyebrow shaping",
	"Styling",
	"Keratin treatment",
}

var timezones = []string{"Asia/Tashkent", "Asia/Samarkand", "UTC", "Europe/Istanbul"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	count := 50
	if v := os.Getenv("SEED_BUSINESSES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedBusinesses(context.Background(), pool, faker, count); err != nil {
		log.Fatalf("seed businesses: %v", err)
	}

	log.Println("seed complete")
}

func seedBusinesses(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Printf("seeding %d businesses", count)

	const batchSize = 10

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			if err := seedBusiness(ctx, tx, faker); err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("businesses seeded: %d/%d", end, count)
	}

	return nil
}

func seedBusiness(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker) error {
	id := uuid.NewString()
	name := fmt.Sprintf("%s %s", faker.Company(), faker.RandomString([]string{"Salon", "Studio", "Barbershop", "Spa"}))
	tz := timezones[faker.Number(0, len(timezones)-1)]

	_, err := tx.Exec(ctx, `
		INSERT INTO businesses (id, name, timezone, created_at)
		VALUES ($1, $2, $3, now())
	`, id, name, tz)
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}

	open := faker.Number(8, 10) * 3600
	closing := faker.Number(18, 21) * 3600
	// closed on Sunday, sometimes on Saturday as well
	lastDay := time.Saturday
	if faker.Bool() {
		lastDay = time.Friday
	}
	for d := time.Monday; d <= lastDay; d++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO business_hours (business_id, weekday, open_seconds, close_seconds)
			VALUES ($1, $2, $3, $4)
		`, id, int(d), open, closing)
		if err != nil {
			return fmt.Errorf("insert hours: %w", err)
		}
	}

	n := faker.Number(3, len(serviceNames))
	picked := make([]string, len(serviceNames))
	copy(picked, serviceNames)
	faker.ShuffleStrings(picked)

	for i, svc := range picked[:n] {
		price := int64(faker.Number(5, 60)) * 10000
		duration := faker.RandomInt([]int{15, 20, 30, 45, 60, 90, 120})
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, business_id, name, price, duration_minutes, active, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.NewString(), id, svc, price, duration, faker.Number(0, 9) > 0, i)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
	}

	return nil
}

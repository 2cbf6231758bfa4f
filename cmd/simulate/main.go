package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/blyssuz/booking-flow/internal/api"
	"github.com/blyssuz/booking-flow/internal/booking"
	"github.com/blyssuz/booking-flow/internal/config"
	"github.com/blyssuz/booking-flow/internal/db"
	"github.com/blyssuz/booking-flow/internal/logging"
)

type SimConfig struct {
	APIBaseURL    string
	Duration      time.Duration
	Workers       int
	SubmitRatio   float64 // share of journeys that end with a submit
	RaceRatio     float64 // share of journeys that fire two concurrent edits
	BusinessLimit int
	AuthToken     string
	PostgresDSN   string
}

// target is a business with the services a journey may pick from.
type target struct {
	BusinessID string
	ServiceIDs []string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95 = latencies[min(len(latencies)*95/100, len(latencies)-1)]
	max = latencies[len(latencies)-1]
	return avg, p50, p95, max
}

type Metrics struct {
	Start      OperationMetrics
	SelectDate OperationMetrics
	SelectTime OperationMetrics
	AddService OperationMetrics
	Submit     OperationMetrics
	Degraded   int64
	RolledBack int64
}

type Simulator struct {
	config  SimConfig
	targets []target
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	logger, err := logging.New(false)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("simulator starting",
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("submit_ratio", cfg.SubmitRatio),
		zap.Float64("race_ratio", cfg.RaceRatio))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pgPool.Close()

	targets, err := loadTargets(ctx, pgPool, cfg.BusinessLimit)
	if err != nil {
		logger.Fatal("load businesses", zap.Error(err))
	}
	logger.Info("loaded businesses", zap.Int("count", len(targets)))

	sim := &Simulator{
		config:  cfg,
		targets: targets,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:    getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:      getDuration("SIM_DURATION", 30*time.Second),
		Workers:       getInt("SIM_WORKERS", 10),
		SubmitRatio:   getFloat("SIM_SUBMIT_RATIO", 0.3),
		RaceRatio:     getFloat("SIM_RACE_RATIO", 0.1),
		BusinessLimit: getInt("SIM_BUSINESS_LIMIT", 50),
		AuthToken:     os.Getenv("SIM_AUTH_TOKEN"),
		PostgresDSN:   baseCfg.PostgresDSN,
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadTargets(ctx context.Context, pool *pgxpool.Pool, limit int) ([]target, error) {
	rows, err := pool.Query(ctx, `
		SELECT b.id, array_agg(s.id ORDER BY s.sort_order)
		FROM businesses b
		JOIN services s ON s.business_id = b.id AND s.active
		GROUP BY b.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []target
	for rows.Next() {
		var t target
		if err := rows.Scan(&t.BusinessID, &t.ServiceIDs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no businesses with active services, run cmd/seed first")
	}
	return out, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for ctx.Err() == nil {
				s.journey(ctx, rng)
			}
		}(i)
	}

	wg.Wait()
	s.logger.Info("simulation complete")
}

// journey walks one customer through the flow: start, date, time, maybe a
// second service, maybe a submit.
func (s *Simulator) journey(ctx context.Context, rng *rand.Rand) {
	t := s.targets[rng.Intn(len(s.targets))]

	var view booking.View
	status := s.call(ctx, &s.metrics.Start, http.MethodPost, "/flows", api.StartFlowRequest{
		BusinessID: t.BusinessID,
		ServiceIDs: []string{t.ServiceIDs[rng.Intn(len(t.ServiceIDs))]},
	}, &view)
	if status != http.StatusCreated {
		return
	}
	base := "/flows/" + view.SessionID

	// look up to a week ahead until a day has free times
	for offset := 1; offset <= 7; offset++ {
		date := time.Now().AddDate(0, 0, offset).Format("2006-01-02")
		status = s.call(ctx, &s.metrics.SelectDate, http.MethodPut, base+"/date", api.SelectDateRequest{Date: date}, &view)
		if status == http.StatusOK && view.Window != nil && !view.Window.Empty() {
			break
		}
	}
	if view.Window == nil || view.Window.Empty() {
		return
	}
	if view.Error != "" {
		atomic.AddInt64(&s.metrics.Degraded, 1)
	}

	times := view.Window.AvailableStartTimes
	startTime := times[rng.Intn(len(times))]
	if rng.Float64() < s.config.RaceRatio && len(times) > 1 {
		s.race(ctx, base, times)
	}
	status = s.call(ctx, &s.metrics.SelectTime, http.MethodPut, base+"/time", map[string]int{"time": startTime}, &view)
	if status != http.StatusOK {
		return
	}

	if len(t.ServiceIDs) > 1 && rng.Intn(2) == 0 {
		extra := t.ServiceIDs[rng.Intn(len(t.ServiceIDs))]
		status = s.call(ctx, &s.metrics.AddService, http.MethodPost, base+"/services", api.AddServiceRequest{ServiceID: extra}, &view)
		if status == http.StatusOK && view.Notice != nil && view.Notice.Kind == booking.NoticeNoEligibleStaff {
			atomic.AddInt64(&s.metrics.RolledBack, 1)
		}
	}

	if view.State != booking.StateReady || rng.Float64() >= s.config.SubmitRatio {
		return
	}
	var out api.SubmitResponse
	s.call(ctx, &s.metrics.Submit, http.MethodPost, base+"/submit", nil, &out)
}

// race fires two time changes on the same session at once. One of them is
// expected to come back as flow_busy.
func (s *Simulator) race(ctx context.Context, base string, times []int) {
	var wg sync.WaitGroup
	for _, tm := range times[:2] {
		wg.Add(1)
		go func(tm int) {
			defer wg.Done()
			var v booking.View
			s.call(ctx, &s.metrics.SelectTime, http.MethodPut, base+"/time", map[string]int{"time": tm}, &v)
		}(tm)
	}
	wg.Wait()
}

func (s *Simulator) call(ctx context.Context, om *OperationMetrics, method, path string, body, out any) int {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.AuthToken)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, false, false)
		}
		return 0
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	success := resp.StatusCode < http.StatusBadRequest
	conflict := resp.StatusCode == http.StatusConflict
	if success && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			s.logger.Debug("undecodable response", zap.String("path", path), zap.Error(err))
		}
	}
	om.Record(latency, success, conflict)
	return resp.StatusCode
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Degraded windows: %d\n", atomic.LoadInt64(&s.metrics.Degraded))
	fmt.Printf("Rolled back adds: %d\n", atomic.LoadInt64(&s.metrics.RolledBack))
	fmt.Println()

	printOperationReport("Start flow", &s.metrics.Start)
	printOperationReport("Select date", &s.metrics.SelectDate)
	printOperationReport("Select time", &s.metrics.SelectTime)
	printOperationReport("Add service", &s.metrics.AddService)
	printOperationReport("Submit", &s.metrics.Submit)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

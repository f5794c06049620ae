package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	CancelRatio     float64
	RescheduleRatio float64
	ReadRatio       float64
	HorizonDays     int
	PatientLimit    int
	ProviderLimit   int
	PostgresDSN     string
	Location        *time.Location
}

type DataPool struct {
	Patients  []uuid.UUID
	Providers []uuid.UUID
	mu        sync.Mutex
	bookings  []simBooking // live bookings created by this run
}

type simBooking struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	ProviderID uuid.UUID
	Date       string
}

func (dp *DataPool) AddBooking(b simBooking) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.bookings = append(dp.bookings, b)
}

// TakeBooking removes and returns a random live booking.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (simBooking, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.bookings) == 0 {
		return simBooking{}, false
	}
	idx := rng.Intn(len(dp.bookings))
	b := dp.bookings[idx]
	dp.bookings[idx] = dp.bookings[len(dp.bookings)-1]
	dp.bookings = dp.bookings[:len(dp.bookings)-1]
	return b, true
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
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Availability  OperationMetrics
	Booking       OperationMetrics
	Cancel        OperationMetrics
	Reschedule    OperationMetrics
	ListByPatient OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger
}

// apiSlot and apiError mirror the fields of the API responses the simulator reads.
type apiSlot struct {
	ID        uuid.UUID `json:"id"`
	StartTime time.Time `json:"startTime"`
	Available bool      `json:"available"`
}

type apiError struct {
	Error string `json:"error"`
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel).With().Str("service", "simulate").Logger()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("reschedule", cfg.RescheduleRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("providers", len(dataPool.Providers)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    logger,
	}

	sim.Run()
	sim.PrintReport()
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.4),
		CancelRatio:     getFloat("SIM_CANCEL_RATIO", 0.1),
		RescheduleRatio: getFloat("SIM_RESCHEDULE_RATIO", 0.1),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.4),
		HorizonDays:     getInt("SIM_HORIZON_DAYS", 14),
		PatientLimit:    getInt("SIM_PATIENT_LIMIT", 4000),
		ProviderLimit:   getInt("SIM_PROVIDER_LIMIT", 100),
		PostgresDSN:     base.PostgresDSN,
		Location:        base.Location,
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.RescheduleRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.RescheduleRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HorizonDays <= 0 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	patients, err := loadIDs(ctx, pool, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	dataPool.Patients = patients

	providers, err := loadIDs(ctx, pool, `
		SELECT DISTINCT provider_id FROM availability_templates
		WHERE active AND deleted_at IS NULL
		LIMIT $1
	`, cfg.ProviderLimit)
	if err != nil {
		return nil, fmt.Errorf("load providers: %w", err)
	}
	dataPool.Providers = providers

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Providers) == 0 {
		return nil, fmt.Errorf("no providers with active templates loaded")
	}
	return dataPool, nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	c := s.config

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < c.BookingRatio:
				s.doBooking(ctx, rng)
			case r < c.BookingRatio+c.CancelRatio:
				s.doCancel(ctx, rng)
			case r < c.BookingRatio+c.CancelRatio+c.RescheduleRatio:
				s.doReschedule(ctx, rng)
			default:
				if rng.Intn(2) == 0 {
					s.doAvailability(ctx, rng)
				} else {
					s.doListByPatient(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) string {
	return time.Now().In(s.config.Location).AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays)).Format(time.DateOnly)
}

func (s *Simulator) randomPatient(rng *rand.Rand) uuid.UUID {
	return s.pool.Patients[rng.Intn(len(s.pool.Patients))]
}

func (s *Simulator) randomProvider(rng *rand.Rand) uuid.UUID {
	return s.pool.Providers[rng.Intn(len(s.pool.Providers))]
}

// availableSlots fetches the slots of a day that can still take a booking.
func (s *Simulator) availableSlots(ctx context.Context, providerID uuid.UUID, date string) ([]apiSlot, int, error) {
	url := fmt.Sprintf("%s/available-slots?doctorId=%s&date=%s", s.config.APIBaseURL, providerID, date)
	var body struct {
		Slots []apiSlot `json:"slots"`
	}
	status, err := s.call(ctx, http.MethodGet, url, uuid.Nil, nil, &body, nil)
	if err != nil || status != http.StatusOK {
		return nil, status, err
	}

	open := body.Slots[:0]
	for _, slot := range body.Slots {
		if slot.Available {
			open = append(open, slot)
		}
	}
	return open, status, nil
}

func (s *Simulator) doAvailability(ctx context.Context, rng *rand.Rand) {
	start := time.Now()
	_, status, err := s.availableSlots(ctx, s.randomProvider(rng), s.randomDate(rng))
	s.metrics.Availability.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	providerID := s.randomProvider(rng)
	patientID := s.randomPatient(rng)
	date := s.randomDate(rng)

	slots, _, err := s.availableSlots(ctx, providerID, date)
	if err != nil || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(len(slots))]

	reqBody := map[string]any{
		"doctorId":        providerID.String(),
		"patientId":       patientID.String(),
		"appointmentDate": slot.StartTime,
		"reason":          "simulated visit",
	}

	start := time.Now()
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	var apiErr apiError
	status, err := s.call(ctx, http.MethodPost, s.config.APIBaseURL+"/book", patientID, reqBody, &created, &apiErr)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	if success && created.ID != uuid.Nil {
		s.pool.AddBooking(simBooking{ID: created.ID, PatientID: patientID, ProviderID: providerID, Date: date})
	}
	s.metrics.Booking.Record(latency, success, isConflict(status, apiErr))
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	var apiErr apiError
	status, err := s.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/bookings/%s/cancel", s.config.APIBaseURL, b.ID),
		b.PatientID, map[string]string{"reason": "simulated cancellation"}, nil, &apiErr)
	s.metrics.Cancel.Record(time.Since(start), err == nil && status == http.StatusOK, isConflict(status, apiErr))
}

func (s *Simulator) doReschedule(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	date := s.randomDate(rng)
	slots, _, err := s.availableSlots(ctx, b.ProviderID, date)
	if err != nil || len(slots) == 0 {
		s.pool.AddBooking(b)
		return
	}
	slot := slots[rng.Intn(len(slots))]

	start := time.Now()
	var moved struct {
		ID uuid.UUID `json:"id"`
	}
	var apiErr apiError
	status, err := s.call(ctx, http.MethodPost,
		fmt.Sprintf("%s/bookings/%s/reschedule", s.config.APIBaseURL, b.ID),
		b.PatientID, map[string]string{"slotId": slot.ID.String()}, &moved, &apiErr)
	latency := time.Since(start)

	success := err == nil && status == http.StatusCreated
	switch {
	case success:
		s.pool.AddBooking(simBooking{ID: moved.ID, PatientID: b.PatientID, ProviderID: b.ProviderID, Date: date})
	case isConflict(status, apiErr):
		// The original booking is untouched when the destination is full.
		s.pool.AddBooking(b)
	}
	s.metrics.Reschedule.Record(latency, success, isConflict(status, apiErr))
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patientID := s.randomPatient(rng)

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet,
		fmt.Sprintf("%s/bookings?patientId=%s&limit=20&offset=0", s.config.APIBaseURL, patientID),
		patientID, nil, nil, nil)
	s.metrics.ListByPatient.Record(time.Since(start), err == nil && status == http.StatusOK, false)
}

// call sends a JSON request as actor and decodes a 2xx body into out and any
// other body into errOut.
func (s *Simulator) call(ctx context.Context, method, url string, actor uuid.UUID, in, out, errOut any) (int, error) {
	var body *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != uuid.Nil {
		req.Header.Set("X-Actor-ID", actor.String())
		req.Header.Set("X-Actor-Role", "patient")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	target := out
	if resp.StatusCode >= 300 {
		target = errOut
	}
	if target != nil {
		_ = json.NewDecoder(resp.Body).Decode(target)
	}
	return resp.StatusCode, nil
}

// isConflict reports the outcomes expected under contention: a slot filled by
// someone else or a booking changed concurrently.
func isConflict(status int, apiErr apiError) bool {
	if status == http.StatusConflict {
		return true
	}
	switch apiErr.Error {
	case "slot_full", "slot_unavailable":
		return true
	}
	return false
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Available slots", &s.metrics.Availability)
	printOperationReport("Book", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Reschedule", &s.metrics.Reschedule)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
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

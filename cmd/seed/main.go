package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
	"github.com/hackgods/clinic-slot-booking/internal/notify"
	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var slotDurations = []int{15, 20, 30, 45}

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	providers := getInt("SEED_PROVIDERS", 50)
	patients := getInt("SEED_PATIENTS", 5000)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool, logger).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	repo := scheduling.NewPgRepository(pool)
	svc := scheduling.NewService(repo, notify.NewLogPublisher(logger), cfg, logger)

	if err := seedProviders(ctx, repo, svc, providers, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(ctx, repo, patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

// seedProviders creates providers with a weekday schedule each. Roughly a
// third of them get a lunch break and some work only every other week.
func seedProviders(ctx context.Context, repo *scheduling.PgRepository, svc *scheduling.Service, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding providers")

	for i := 0; i < count; i++ {
		specialty := specialties[gofakeit.Number(0, len(specialties)-1)]
		p, err := repo.CreateProvider(ctx, "Dr. "+gofakeit.Name(), &specialty)
		if err != nil {
			return err
		}

		for _, t := range fakeWeek(p.ID) {
			if err := svc.CreateTemplate(ctx, &t); err != nil {
				if errors.Is(err, scheduling.ErrOverlappingTemplate) {
					continue
				}
				return err
			}
		}
	}

	logger.Info().Msg("providers seeded")
	return nil
}

func fakeWeek(providerID uuid.UUID) []scheduling.AvailabilityTemplate {
	duration := slotDurations[gofakeit.Number(0, len(slotDurations)-1)]
	startHour := gofakeit.Number(7, 10)
	endHour := gofakeit.Number(15, 19)
	capacity := 1
	if gofakeit.Number(1, 10) == 1 {
		capacity = gofakeit.Number(2, 4)
	}
	interval := 1
	if gofakeit.Number(1, 5) == 1 {
		interval = 2
	}

	var templates []scheduling.AvailabilityTemplate
	for wd := time.Monday; wd <= time.Friday; wd++ {
		if gofakeit.Number(1, 6) == 1 {
			continue // day off
		}
		t := scheduling.AvailabilityTemplate{
			ProviderID:    providerID,
			Weekday:       wd,
			StartTime:     scheduling.Clock(startHour, 0),
			EndTime:       scheduling.Clock(endHour, 0),
			SlotDuration:  duration,
			Capacity:      capacity,
			Kind:          scheduling.SlotRegular,
			IntervalWeeks: interval,
		}
		if gofakeit.Number(1, 3) == 1 {
			bs, be := scheduling.Clock(12, 0), scheduling.Clock(13, 0)
			t.BreakStart, t.BreakEnd = &bs, &be
		}
		templates = append(templates, t)
	}
	return templates
}

func seedPatients(ctx context.Context, repo *scheduling.PgRepository, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		err := repo.WithTx(ctx, func(tx scheduling.Store) error {
			txRepo := tx.(*scheduling.PgRepository)
			for i := offset; i < end; i++ {
				email := gofakeit.Email()
				if _, err := txRepo.CreatePatient(ctx, gofakeit.Name(), &email); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-booking/internal/recurrence"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
)

const materializeLock = "materialize"

// SlotMaterializer pre-generates slots for every provider over a date range.
type SlotMaterializer interface {
	MaterializeAll(ctx context.Context, from, to time.Time) (int, error)
}

// MaterializeJob keeps a rolling window of slots generated ahead of time so
// availability reads rarely have to materialize on the request path.
type MaterializeJob struct {
	svc     SlotMaterializer
	locker  redisclient.Locker
	loc     *time.Location
	horizon int
	timeout time.Duration
	log     zerolog.Logger
	now     func() time.Time
}

func NewMaterializeJob(svc SlotMaterializer, locker redisclient.Locker, loc *time.Location, horizonDays int, timeout time.Duration, logger zerolog.Logger) *MaterializeJob {
	if loc == nil {
		loc = time.UTC
	}
	if horizonDays < 1 {
		horizonDays = 1
	}
	return &MaterializeJob{
		svc:     svc,
		locker:  locker,
		loc:     loc,
		horizon: horizonDays,
		timeout: timeout,
		log:     logger.With().Str("component", "materialize_job").Logger(),
		now:     time.Now,
	}
}

// Window returns the first and last civil date the next run covers.
func (j *MaterializeJob) Window() (from, to time.Time) {
	from = recurrence.DateOf(j.now().In(j.loc))
	return from, from.AddDate(0, 0, j.horizon-1)
}

// RunOnce materializes the window under a fleet-wide lock. Another worker
// holding the lock is not an error; the run is skipped.
func (j *MaterializeJob) RunOnce(ctx context.Context) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	from, to := j.Window()
	start := time.Now()

	var created int
	err := j.locker.WithLock(ctx, materializeLock, func(ctx context.Context) error {
		var err error
		created, err = j.svc.MaterializeAll(ctx, from, to)
		return err
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		j.log.Info().Msg("another worker holds the materialize lock, skipping run")
		return nil
	}

	ev := j.log.Info()
	if err != nil {
		ev = j.log.Error().Err(err)
	}
	ev.Str("from", from.Format(time.DateOnly)).
		Str("to", to.Format(time.DateOnly)).
		Int("created", created).
		Dur("took", time.Since(start)).
		Msg("materialize run finished")

	return err
}

package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
	"github.com/robfig/cron/v3"
)

// ExpiredDeleter removes queues whose expiry has passed and returns their ids.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// StreamCloser ends the live streams of a removed queue.
type StreamCloser interface {
	CloseQueue(queueID uuid.UUID)
}

// Reaper reclaims expired queues in the background. Reads never depend on
// it: expired queues are already hidden by the services.
type Reaper struct {
	queues   ExpiredDeleter
	streams  StreamCloser
	log      *slog.Logger
	now      func() time.Time
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

// scheduleParser accepts standard five-field specs, six fields with leading
// seconds, and descriptors such as "@every 1m".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New(queues ExpiredDeleter, streams StreamCloser, log *slog.Logger, now func() time.Time, schedule string) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &Reaper{queues: queues, streams: streams, log: log, now: now, schedule: schedule}
}

func (r *Reaper) RunOnce(ctx context.Context) ([]uuid.UUID, error) {
	const op = "reaper.run_once"

	removed, err := r.queues.DeleteExpired(ctx, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if r.streams != nil {
		for _, id := range removed {
			r.streams.CloseQueue(id)
		}
	}
	if len(removed) > 0 {
		r.log.Info("expired queues removed", slog.String("op", op), slog.Int("count", len(removed)))
	}
	return removed, nil
}

// Start schedules RunOnce. The context bounds each run, not the schedule.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}

	c := cron.New(cron.WithParser(scheduleParser))
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error("cleanup failed", sl.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("reaper: invalid schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.log.Info("reaper started", slog.String("schedule", r.schedule))
	return nil
}

// Stop waits for a running cleanup to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}

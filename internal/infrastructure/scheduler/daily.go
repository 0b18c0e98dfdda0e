package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/ports"
)

// DailyScheduler fires the job once per day at a fixed wall-clock time in
// the configured location.
type DailyScheduler struct {
	hour     int
	minute   int
	location *time.Location
	logger   *slog.Logger
	stop     chan struct{}
}

var _ ports.Scheduler = (*DailyScheduler)(nil)

// NewDailyScheduler parses an "HH:MM" execute time.
func NewDailyScheduler(executeTime string, location *time.Location, logger *slog.Logger) (*DailyScheduler, error) {
	parsed, err := time.Parse("15:04", executeTime)
	if err != nil {
		return nil, fmt.Errorf("invalid execute time %q: %w", executeTime, err)
	}
	if location == nil {
		location = time.UTC
	}

	return &DailyScheduler{
		hour:     parsed.Hour(),
		minute:   parsed.Minute(),
		location: location,
		logger:   logger,
	}, nil
}

// Start launches the scheduling goroutine. The first run is aligned to the
// next occurrence of the configured time.
func (d *DailyScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if d.stop != nil {
		return nil
	}

	d.stop = make(chan struct{})
	go d.run(ctx, job, d.stop)
	return nil
}

func (d *DailyScheduler) run(ctx context.Context, job func(time.Time), stop chan struct{}) {
	for {
		next := d.nextRun(time.Now().In(d.location))
		if d.logger != nil {
			d.logger.Info("next scheduled run", "at", next.Format(time.RFC3339))
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case t := <-timer.C:
			job(t)
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Stop halts the scheduling goroutine.
func (d *DailyScheduler) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.stop = nil
	return nil
}

// nextRun returns the next occurrence of the configured wall-clock time
// strictly after now.
func (d *DailyScheduler) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, 0, 0, d.location)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

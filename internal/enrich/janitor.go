package enrich

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	// staleAfter is well beyond the run timeout, so anything still flagged
	// at that age belongs to a process that died mid-run.
	staleAfter = 15 * time.Minute
	sweepEvery = 5 * time.Minute
)

// StaleSweeper clears processing flags older than the given age.
type StaleSweeper interface {
	ClearStaleProcessing(olderThan time.Duration) (int64, error)
}

// Janitor recovers entries stranded in the processing state. The flag
// lives in the database but the queue lives in memory, so a crash mid-run
// leaves flags set with nothing working on them.
type Janitor struct {
	scheduler gocron.Scheduler
	repos     StaleSweeper
}

// NewJanitor creates the janitor and its scheduler. Call Start to begin
// sweeping.
func NewJanitor(repos StaleSweeper) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Janitor{scheduler: scheduler, repos: repos}, nil
}

// Start runs one boot sweep and then schedules periodic ones. At boot the
// queue is empty, so every set flag is stranded and the sweep clears them
// all regardless of age.
func (j *Janitor) Start() error {
	if n, err := j.repos.ClearStaleProcessing(0); err != nil {
		slog.Error("boot sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("boot sweep cleared stranded entries", "count", n)
	}

	_, err := j.scheduler.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(j.sweep),
		gocron.WithName("enrich-stale-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	j.scheduler.Start()
	slog.Info("enrichment janitor started", "interval", sweepEvery)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweep() {
	n, err := j.repos.ClearStaleProcessing(staleAfter)
	if err != nil {
		slog.Error("stale sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Warn("cleared stale processing flags", "count", n)
	}
}

package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tgdsl/runtime/internal/storage"
)

// RetentionJob periodically purges event rows older than a configured
// window, enforcing Events.RetentionDays / EVENTS_DB_RETENTION_DAYS.
type RetentionJob struct {
	store  storage.EventStore
	days   int
	logger *slog.Logger
	cron   *cron.Cron
}

// NewRetentionJob builds a purge job for the given retention window. days
// <= 0 disables the job (Start is then a no-op): a deployment with no
// configured retention keeps its events forever.
func NewRetentionJob(store storage.EventStore, days int, logger *slog.Logger) *RetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionJob{store: store, days: days, logger: logger}
}

// Start schedules the purge to run once a day and returns immediately.
// Stop must be called to release the scheduler's goroutine.
func (j *RetentionJob) Start(ctx context.Context) {
	if j.days <= 0 {
		return
	}

	j.cron = cron.New()
	_, err := j.cron.AddFunc("@daily", func() { j.purge(ctx) })
	if err != nil {
		j.logger.Error("retention job: invalid schedule", "error", err)
		return
	}
	j.cron.Start()
}

// Stop halts the scheduler, waiting for an in-flight purge to finish.
func (j *RetentionJob) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// purge deletes every event older than the retention window.
func (j *RetentionJob) purge(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -j.days)
	removed, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("retention purge failed", "error", err, "retention_days", j.days)
		return
	}
	if removed > 0 {
		j.logger.Info("retention purge complete", "removed", removed, "retention_days", j.days, "cutoff", cutoff)
	}
}

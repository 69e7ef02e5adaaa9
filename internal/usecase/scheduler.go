package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ragresearch/internal/ports"
)

// ScheduledRunner ties the scheduler to pipeline execution. A trigger
// that fires while a run is still in flight is skipped, never queued.
type ScheduledRunner struct {
	scheduler ports.Scheduler
	pipeline  *Orchestrator
	notifier  ports.Notifier // nil disables run reports
	log       *slog.Logger

	mu      sync.Mutex
	running bool
}

func NewScheduledRunner(scheduler ports.Scheduler, pipeline *Orchestrator, notifier ports.Notifier, log *slog.Logger) *ScheduledRunner {
	return &ScheduledRunner{
		scheduler: scheduler,
		pipeline:  pipeline,
		notifier:  notifier,
		log:       log.With(slog.String("component", "runner")),
	}
}

// Start begins scheduled execution. Each trigger runs the full pipeline.
func (r *ScheduledRunner) Start(ctx context.Context) error {
	return r.scheduler.Start(ctx, func(at time.Time) {
		r.mu.Lock()
		if r.running {
			r.mu.Unlock()
			r.log.Warn("previous run still active, skipping trigger",
				slog.Time("triggeredAt", at))
			return
		}
		r.running = true
		r.mu.Unlock()

		defer func() {
			r.mu.Lock()
			r.running = false
			r.mu.Unlock()
		}()

		run, err := r.pipeline.RunPipeline(ctx)
		if err != nil {
			r.log.Error("scheduled run failed", slog.String("error", err.Error()))
		}
		if r.notifier != nil && run.ID != 0 {
			if err := r.notifier.PublishRunReport(ctx, run); err != nil {
				r.log.Warn("run report failed", slog.String("error", err.Error()))
			}
		}
	})
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (r *ScheduledRunner) Stop(ctx context.Context) error {
	return r.scheduler.Stop(ctx)
}

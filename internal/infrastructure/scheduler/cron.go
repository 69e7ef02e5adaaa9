// Package scheduler triggers pipeline runs on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ragresearch/internal/ports"
)

// CronScheduler runs the configured job on a standard 5-field cron
// expression in the configured timezone.
type CronScheduler struct {
	expr string
	loc  *time.Location
	log  *slog.Logger
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

func NewCronScheduler(expr string, loc *time.Location, log *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{
		expr: expr,
		loc:  loc,
		log:  log.With(slog.String("component", "scheduler")),
	}
}

// Start registers the job and begins the cron loop. The job receives
// the trigger time.
func (s *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(s.expr, func() {
		if ctx.Err() != nil {
			return
		}
		job(time.Now().In(s.loc))
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.expr, err)
	}

	s.cron = c
	c.Start()
	s.log.Info("scheduler started", slog.String("cron", s.expr), slog.String("tz", s.loc.String()))
	return nil
}

// Stop halts the cron loop and waits for a running job to finish, up
// to the context deadline.
func (s *CronScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

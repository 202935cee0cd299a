package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/store"
)

// DefaultSchedule runs the job every day at 05:00.
const DefaultSchedule = "0 5 * * *"

// Scheduler triggers the job on a cron schedule.
type Scheduler struct {
	job      *Job
	statuses store.StatusStore
	schedule cron.Schedule
	loc      *time.Location
	timeout  time.Duration
}

func NewScheduler(job *Job, statuses store.StatusStore, spec string, loc *time.Location) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		job:      job,
		statuses: statuses,
		schedule: schedule,
		loc:      loc,
		timeout:  10 * time.Minute,
	}, nil
}

// Next returns the next scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run blocks until ctx is cancelled and any job in flight has finished. If no
// status exists for today the job runs once immediately so a restart never
// leaves the day empty.
func (s *Scheduler) Run(ctx context.Context) {
	s.runIfStale(ctx)

	c := cron.New(cron.WithLocation(s.loc))
	c.Schedule(s.schedule, cron.FuncJob(func() {
		s.runJob(ctx, TriggerSchedule)
	}))
	c.Start()
	log.Info().Str("component", "scheduler").Time("next", s.Next(time.Now())).Msg("scheduler: started")

	<-ctx.Done()
	log.Info().Str("component", "scheduler").Msg("scheduler: shutting down")
	<-c.Stop().Done()
}

func (s *Scheduler) runIfStale(ctx context.Context) {
	latest, err := s.statuses.LatestStatus(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warn().Err(err).Str("component", "scheduler").Msg("scheduler: read latest status")
		return
	}
	if latest != nil && !latest.Date.Before(s.job.Today()) {
		return
	}
	s.runJob(ctx, TriggerSchedule)
}

func (s *Scheduler) runJob(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	// a started job finishes its run record and status even during shutdown
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	// failures are logged and counted by the job
	_, _ = s.job.Run(runCtx, trigger)
}

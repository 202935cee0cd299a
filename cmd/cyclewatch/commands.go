package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/api"
	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/ingest"
	"github.com/lox/cyclewatch/internal/models"
)

var stdout io.Writer = os.Stdout

type ServeCmd struct {
	Port     string `help:"HTTP server port." default:"8080" env:"PORT"`
	Schedule string `help:"Cron expression for the daily run." default:"0 5 * * *" env:"CYCLEWATCH_SCHEDULE"`
	NoPoll   bool   `help:"Disable the schedule (server only, for local dev)."`
}

func (c *ServeCmd) Run(g *Globals) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := g.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := g.newJob(s)
	if err != nil {
		return err
	}

	server := api.NewServer(s.statuses, c.Port)
	server.SetAudit(s.audit)
	server.SetRunner(job)

	var schedule func(context.Context)
	if !c.NoPoll {
		scheduler, err := ingest.NewScheduler(job, s.statuses, c.Schedule, g.location())
		if err != nil {
			return err
		}
		schedule = scheduler.Run
	} else {
		log.Info().Msg("polling disabled (--no-poll)")
	}

	log.Info().Str("port", c.Port).Msg("starting server")
	return serveUntilDone(ctx, server.Run, schedule)
}

// serveUntilDone runs serve and schedule side by side. It returns once serve
// has stopped and schedule has returned, so the stores outlive any job.
func serveUntilDone(ctx context.Context, serve func(context.Context) error, schedule func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if schedule != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			schedule(ctx)
		}()
	}

	err := serve(ctx)
	cancel()
	wg.Wait()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

type RunCmd struct{}

func (c *RunCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, err := g.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	job, err := g.newJob(s)
	if err != nil {
		return err
	}
	rec, err := job.Run(ctx, ingest.TriggerCLI)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, rec.Status)
	return nil
}

type StatusCmd struct {
	JSON bool `help:"Print the full record as JSON."`
}

func (c *StatusCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, err := g.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.statuses.LatestStatus(ctx)
	if err != nil {
		return fmt.Errorf("latest status: %w", err)
	}
	if c.JSON {
		return json.NewEncoder(stdout).Encode(rec)
	}
	fmt.Fprintln(stdout, rec.Status)
	return nil
}

type ReplayCmd struct {
	RunID int64 `arg:"" help:"ID of the run whose archived payload is classified."`
	Rows  int   `help:"Also print the last N classified rows." default:"0"`
}

// Run classifies the payload a past run archived, without storing a status.
func (c *ReplayCmd) Run(g *Globals) error {
	params, err := g.Classifier.Params()
	if err != nil {
		return err
	}
	ctx := context.Background()
	s, err := g.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	body, err := s.audit.GetRunPayload(ctx, c.RunID)
	if err != nil {
		return err
	}
	return classify(ctx, ingest.NewPayloadProvider(body, g.Series), params, 0, g.location(), c.Rows)
}

type ClassifyCmd struct {
	Rows int `help:"Also print the last N classified rows." default:"0"`
}

func (c *ClassifyCmd) Run(g *Globals) error {
	params, err := g.Classifier.Params()
	if err != nil {
		return err
	}
	return classify(context.Background(), g.provider(), params, g.HistoryDays, g.location(), c.Rows)
}

func classify(ctx context.Context, provider ingest.SeriesProvider, params cycle.Params, historyDays int, loc *time.Location, rows int) error {
	var start, end time.Time
	if historyDays > 0 {
		end = models.Day(time.Now().In(loc))
		start = end.AddDate(0, 0, -historyDays)
	}
	observations, _, err := provider.Fetch(ctx, start, end)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", provider.SeriesID(), err)
	}

	result, err := cycle.Run(observations, params)
	if err != nil {
		return err
	}
	log.Debug().Int("rows", result.Stats.Rows).Int("missing", result.Stats.Missing).
		Int("parse_errors", result.Stats.ParseErrors).Msg("series cleaned")

	rows = max(0, min(rows, len(result.Rows)))
	for _, row := range result.Rows[len(result.Rows)-rows:] {
		fmt.Fprintf(stdout, "%s %10.4f %-8s %-7s %s\n", row.Date.Format(models.DateLayout), row.Filled, row.Trend, row.Level, row.Phase)
	}
	fmt.Fprintln(stdout, result.Summary.String())
	return nil
}

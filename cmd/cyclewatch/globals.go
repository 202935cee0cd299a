package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/ingest"
	"github.com/lox/cyclewatch/internal/store"
)

// Globals are the flags shared by every command.
type Globals struct {
	DB          string `help:"Path to SQLite database." default:"data/cyclewatch.db" env:"CYCLEWATCH_DB"`
	Store       string `help:"Status backend." enum:"sqlite,redis" default:"sqlite" env:"CYCLEWATCH_STORE"`
	RedisURL    string `help:"Redis URL for the redis status backend." default:"redis://localhost:6379/0" env:"REDIS_URL"`
	RedisPrefix string `help:"Key prefix for the redis status backend." default:"cyclewatch:economy_status" env:"CYCLEWATCH_REDIS_PREFIX"`

	Series      string `help:"FRED series id." default:"BAMLH0A0HYM2" env:"CYCLEWATCH_SERIES"`
	FREDURL     string `name:"fred-url" help:"FRED CSV endpoint." default:"https://fred.stlouisfed.org/graph/fredgraph.csv" env:"CYCLEWATCH_FRED_URL"`
	SourceFile  string `help:"Read the series from a local CSV instead of FRED." type:"existingfile" env:"CYCLEWATCH_SOURCE_FILE"`
	HistoryDays int    `help:"Days of history to fetch." default:"3652" env:"CYCLEWATCH_HISTORY_DAYS"`
	Timezone    string `help:"Time zone used for calendar dates and the schedule." default:"UTC" env:"CYCLEWATCH_TIMEZONE"`

	LogLevel  string `help:"Log level." default:"info" enum:"trace,debug,info,warn,error" env:"LOG_LEVEL"`
	LogFormat string `help:"Log output format." default:"console" enum:"console,json" env:"LOG_FORMAT"`

	Classifier ClassifierFlags `embed:"" prefix:"classifier-"`
}

// ClassifierFlags expose cycle.Params on the command line.
type ClassifierFlags struct {
	LongWindow     int     `help:"Rolling median window in days." default:"3650" env:"CYCLEWATCH_LONG_WINDOW"`
	ShortWindow    int     `help:"Rolling mean window in days." default:"7" env:"CYCLEWATCH_SHORT_WINDOW"`
	FutureOffset   int     `help:"Lag of the reference block in days." default:"90" env:"CYCLEWATCH_FUTURE_OFFSET"`
	FutureSpan     int     `help:"Length of the reference block in days." default:"8" env:"CYCLEWATCH_FUTURE_SPAN"`
	TrendThreshold float64 `help:"Relative change that counts as a trend." default:"0.05" env:"CYCLEWATCH_TREND_THRESHOLD"`
	LevelThreshold float64 `help:"Relative deviation that counts as high or low." default:"0.05" env:"CYCLEWATCH_LEVEL_THRESHOLD"`
}

func (c ClassifierFlags) Params() (cycle.Params, error) {
	p := cycle.Params{
		LongWindow:     c.LongWindow,
		ShortWindow:    c.ShortWindow,
		FutureOffset:   c.FutureOffset,
		FutureSpan:     c.FutureSpan,
		TrendThreshold: c.TrendThreshold,
		LevelThreshold: c.LevelThreshold,
	}
	return p, p.Validate()
}

func (g *Globals) location() *time.Location {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		log.Warn().Err(err).Str("timezone", g.Timezone).Msg("could not load timezone, using UTC")
		return time.UTC
	}
	return loc
}

func (g *Globals) provider() ingest.SeriesProvider {
	if g.SourceFile != "" {
		return ingest.NewFileProvider(g.SourceFile, g.Series)
	}
	return ingest.NewFREDClient(g.FREDURL, g.Series)
}

// stores holds the audit database and the selected status backend.
type stores struct {
	db       *sql.DB
	audit    *store.Store
	statuses store.StatusStore
	redis    *redis.Client
}

func (s *stores) Close() {
	if s.redis != nil {
		s.redis.Close()
	}
	s.db.Close()
}

func (g *Globals) openStores(ctx context.Context) (*stores, error) {
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	audit := store.New(db)
	if err := audit.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &stores{db: db, audit: audit, statuses: audit}
	if g.Store != "redis" {
		return s, nil
	}

	opts, err := redis.ParseURL(g.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s.redis = redis.NewClient(opts)
	if err := s.redis.Ping(ctx).Err(); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.statuses = store.NewRedisStore(s.redis, g.RedisPrefix)
	log.Info().Str("addr", opts.Addr).Msg("using redis status store")
	return s, nil
}

func (g *Globals) newJob(s *stores) (*ingest.Job, error) {
	params, err := g.Classifier.Params()
	if err != nil {
		return nil, err
	}
	return ingest.NewJob(s.audit, s.statuses, g.provider(), params, g.HistoryDays, g.location()), nil
}

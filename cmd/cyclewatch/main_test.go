package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/ingest"
	"github.com/lox/cyclewatch/internal/store"
)

func TestCLI_Defaults(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("cyclewatch"))
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"classify"})
	require.NoError(t, err)
	assert.Equal(t, "classify", ctx.Command())

	params, err := cli.Classifier.Params()
	require.NoError(t, err)
	assert.Equal(t, cycle.DefaultParams(), params)
	assert.Equal(t, ingest.DefaultHistoryDays, cli.HistoryDays)
	assert.Equal(t, ingest.DefaultSeriesID, cli.Series)
	assert.Equal(t, "sqlite", cli.Store)
}

func TestCLI_InvalidParams(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("cyclewatch"))
	require.NoError(t, err)

	_, err = parser.Parse([]string{"classify", "--classifier-long-window=0"})
	require.NoError(t, err)
	_, err = cli.Classifier.Params()
	assert.Error(t, err)
}

const wantTransition = `Current status: "GROWTH", since: "2024-01-13", before: "RECESSION"`

// transitionCSV classifies as RECESSION from 2024-01-11, then GROWTH from 2024-01-13.
func transitionCSV() []byte {
	values := []string{"100", "100", "100", "100", "100", "100", "100", "100", "100", "100", "200", "200", "50", "", "n/a"}
	var b strings.Builder
	b.WriteString("observation_date,BAMLH0A0HYM2\n")
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		b.WriteString(day.AddDate(0, 0, i).Format("2006-01-02") + "," + v + "\n")
	}
	return []byte(b.String())
}

var smallClassifier = ClassifierFlags{LongWindow: 10, ShortWindow: 1, FutureOffset: 2, FutureSpan: 1, TrendThreshold: 0.05, LevelThreshold: 0.05}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() { stdout = os.Stdout })
	return &out
}

func TestClassify_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, transitionCSV(), 0o644))
	out := captureStdout(t)

	params, err := smallClassifier.Params()
	require.NoError(t, err)
	err = classify(context.Background(), ingest.NewFileProvider(path, ""), params, 0, time.UTC, 2)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "2024-01-14"))
	assert.Equal(t, wantTransition, lines[2])
}

func TestClassify_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte("observation_date,BAMLH0A0HYM2\n"), 0o644))

	err := classify(context.Background(), ingest.NewFileProvider(path, ""), cycle.DefaultParams(), 0, time.UTC, 0)
	require.ErrorIs(t, err, cycle.ErrInsufficientData)
}

func testGlobals(t *testing.T) *Globals {
	t.Helper()
	return &Globals{
		DB:         filepath.Join(t.TempDir(), "cyclewatch.db"),
		Store:      "sqlite",
		Series:     ingest.DefaultSeriesID,
		Timezone:   "UTC",
		Classifier: smallClassifier,
	}
}

func TestStatusCmd_EmptyStore(t *testing.T) {
	captureStdout(t)
	err := (&StatusCmd{}).Run(testGlobals(t))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplayCmd(t *testing.T) {
	g := testGlobals(t)
	ctx := context.Background()

	s, err := g.openStores(ctx)
	require.NoError(t, err)
	run, err := s.audit.StartRun(ctx, "fred", ingest.DefaultSeriesID, ingest.TriggerCLI)
	require.NoError(t, err)
	_, err = s.audit.StoreRawPayload(ctx, run.ID, "fred", ingest.DefaultSeriesID, transitionCSV())
	require.NoError(t, err)
	s.Close()

	out := captureStdout(t)
	require.NoError(t, (&ReplayCmd{RunID: run.ID}).Run(g))
	assert.Equal(t, wantTransition+"\n", out.String())

	err = (&ReplayCmd{RunID: run.ID + 1}).Run(g)
	require.ErrorIs(t, err, store.ErrPayloadNotFound)
}

func TestServeUntilDone_WaitsForSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var finished bool

	serve := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	schedule := func(ctx context.Context) {
		<-ctx.Done()
		<-release
		finished = true
	}

	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, serve, schedule) }()

	cancel()
	select {
	case <-done:
		t.Fatal("returned before the schedule finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-done)
	assert.True(t, finished)
}

func TestServeUntilDone_ServerErrorStopsSchedule(t *testing.T) {
	stopped := make(chan struct{})
	serve := func(ctx context.Context) error { return errors.New("address in use") }
	schedule := func(ctx context.Context) {
		<-ctx.Done()
		close(stopped)
	}

	err := serveUntilDone(context.Background(), serve, schedule)
	require.ErrorContains(t, err, "server: address in use")
	<-stopped
}

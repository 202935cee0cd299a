package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "observation_date,BAMLH0A0HYM2\n2024-01-02,3.39\n2024-01-03,3.4x\n2024-01-04,.\n2024-01-05,3.41\n"

func fastBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 3)
}

func TestFREDClient_Fetch(t *testing.T) {
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		assert.Equal(t, "cyclewatch/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	c := NewFREDClient(srv.URL, "")
	c.newBackOff = fastBackOff

	start := time.Date(2014, 1, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obs, res, err := c.Fetch(context.Background(), start, end)
	require.NoError(t, err)

	assert.Equal(t, "coed=2024-01-05&cosd=2014-01-03&id=BAMLH0A0HYM2", gotQuery.Load())
	require.Len(t, obs, 4)
	assert.Equal(t, "3.4x", obs[1].Value)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, 4, res.RecordCount)
	assert.Equal(t, len(sampleCSV), res.ResponseSize)
	assert.Equal(t, sampleCSV, string(res.Body))
}

func TestFREDClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	c := NewFREDClient(srv.URL, "BAMLH0A0HYM2")
	c.newBackOff = fastBackOff

	obs, _, err := c.Fetch(context.Background(), time.Time{}, time.Now())
	require.NoError(t, err)
	assert.Len(t, obs, 4)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFREDClient_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "Bad Request.  The series does not exist.", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewFREDClient(srv.URL, "NOPE")
	c.newBackOff = fastBackOff

	_, res, err := c.Fetch(context.Background(), time.Time{}, time.Now())
	require.ErrorContains(t, err, "status 400")
	assert.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFileProvider_FiltersRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	p := NewFileProvider(path, "")
	start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	obs, res, err := p.Fetch(context.Background(), start, end)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "2024-01-03", obs[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2024-01-04", obs[1].Date.Format("2006-01-02"))
	assert.Equal(t, 2, res.RecordCount)

	all, _, err := p.Fetch(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestFileProvider_MissingFile(t *testing.T) {
	p := NewFileProvider(filepath.Join(t.TempDir(), "missing.csv"), "")
	_, _, err := p.Fetch(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
}

func TestPayloadProvider(t *testing.T) {
	p := NewPayloadProvider([]byte(sampleCSV), "")
	assert.Equal(t, "archive", p.Source())
	assert.Equal(t, DefaultSeriesID, p.SeriesID())

	obs, res, err := p.Fetch(context.Background(), time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "2024-01-05", obs[1].Date.Format("2006-01-02"))
	assert.Equal(t, 2, res.RecordCount)

	_, _, err = NewPayloadProvider(nil, "").Fetch(context.Background(), time.Time{}, time.Time{})
	require.Error(t, err)
}

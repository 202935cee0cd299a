package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/cyclewatch/internal/httputil"
	"github.com/lox/cyclewatch/internal/metrics"
	"github.com/lox/cyclewatch/internal/models"
)

const (
	DefaultFREDURL = "https://fred.stlouisfed.org/graph/fredgraph.csv"
	// DefaultSeriesID is the ICE BofA US High Yield Index option-adjusted spread.
	DefaultSeriesID = "BAMLH0A0HYM2"
)

// FREDClient downloads a series as CSV from the FRED graph endpoint.
type FREDClient struct {
	httpClient *http.Client
	baseURL    string
	seriesID   string
	newBackOff func() backoff.BackOff
}

func NewFREDClient(baseURL, seriesID string) *FREDClient {
	if baseURL == "" {
		baseURL = DefaultFREDURL
	}
	if seriesID == "" {
		seriesID = DefaultSeriesID
	}
	return &FREDClient{
		httpClient: httputil.NewClient(),
		baseURL:    baseURL,
		seriesID:   seriesID,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 2 * time.Minute
			return bo
		},
	}
}

func (c *FREDClient) Source() string   { return "fred" }
func (c *FREDClient) SeriesID() string { return c.seriesID }

func (c *FREDClient) seriesURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("id", c.seriesID)
	q.Set("cosd", start.Format(models.DateLayout))
	q.Set("coed", end.Format(models.DateLayout))
	return c.baseURL + "?" + q.Encode()
}

func (c *FREDClient) Fetch(ctx context.Context, start, end time.Time) ([]models.RawObservation, *FetchResult, error) {
	result := &FetchResult{}
	target := c.seriesURL(start, end)

	began := time.Now()
	defer func() {
		metrics.SeriesFetchLatency.WithLabelValues(c.Source()).Observe(time.Since(began).Seconds())
	}()

	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", httputil.UserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.SeriesFetchTotal.WithLabelValues(c.Source(), "error").Inc()
			return fmt.Errorf("fetch series: %w", err)
		}
		defer resp.Body.Close()

		result.HTTPStatus = resp.StatusCode
		metrics.SeriesFetchTotal.WithLabelValues(c.Source(), strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch series: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch series: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, result, err
	}

	result.ResponseSize = len(body)
	result.Body = body

	observations, skipped, err := DecodeSeriesCSV(bytes.NewReader(body), c.seriesID)
	if err != nil {
		return nil, result, fmt.Errorf("decode %s: %w", c.seriesID, err)
	}
	result.RecordCount = len(observations)
	result.SkippedRows = skipped
	return observations, result, nil
}

// Package source fetches the hourly report from the upstream endpoint and
// keeps a time-boxed copy of it in a cache.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/radiusdt/inapp-report/internal/metrics"
	"github.com/radiusdt/inapp-report/internal/models"
	"go.uber.org/zap"
)

// ErrFetch matches every FetchError through errors.Is.
var ErrFetch = errors.New("fetch hourly report")

// FetchError is a failed upstream call: a transport error, a non-2xx
// status or a body that is not a JSON array. StatusCode is 0 when no
// response arrived.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", ErrFetch, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", ErrFetch, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrFetch, e.Err)
	}
	return ErrFetch.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetch) hold for any FetchError.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// Fetcher retrieves the full record set.
type Fetcher interface {
	Fetch(ctx context.Context) (*FetchResult, error)
}

// FetchResult is one decoded upstream response.
type FetchResult struct {
	Records []models.HourlyRecord
	// Skipped counts array elements that did not decode as a record.
	Skipped int
}

// Client fetches the report with a single GET and no query parameters.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics reports fetch outcomes to m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for url.
func NewClient(url string, timeout time.Duration, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and decodes the report. Any failure is a *FetchError
// and no partial result is returned; elements of the array that fail to
// decode are skipped with a warning instead.
func (c *Client) Fetch(ctx context.Context) (*FetchResult, error) {
	start := time.Now()

	res, err := c.fetch(ctx)
	status := "ok"
	if err != nil {
		status = "error"
		c.logger.Error("hourly report fetch failed",
			zap.String("url", c.url),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
	} else {
		c.logger.Info("hourly report fetched",
			zap.Int("records", len(res.Records)),
			zap.Int("skipped", res.Skipped),
			zap.Duration("duration", time.Since(start)),
		)
	}
	if c.metrics != nil {
		c.metrics.RecordFetch(status, time.Since(start))
		if res != nil {
			c.metrics.RecordSkipped("decode", res.Skipped)
		}
	}
	return res, err
}

func (c *Client) fetch(ctx context.Context) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Err: errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{StatusCode: resp.StatusCode}
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &FetchError{StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode body")}
	}

	return decodeRecords(raw, c.logger), nil
}

func decodeRecords(raw []json.RawMessage, logger *zap.Logger) *FetchResult {
	res := &FetchResult{Records: make([]models.HourlyRecord, 0, len(raw))}
	for i, item := range raw {
		var r models.HourlyRecord
		if err := json.Unmarshal(item, &r); err != nil {
			logger.Warn("skipping undecodable record", zap.Int("index", i), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Records = append(res.Records, r)
	}
	return res
}

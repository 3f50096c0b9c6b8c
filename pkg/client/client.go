// Package client talks to a running smprofiler server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harun/smprofiler/pkg/api"
	"github.com/harun/smprofiler/pkg/profiler"
	"github.com/harun/smprofiler/pkg/timeseries"
)

// ErrNotFound matches any 404 response.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is an HTTP client for the profiler API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL, e.g. http://127.0.0.1:8888.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// DataQuery selects a dataset and an optional date range.
type DataQuery struct {
	Bucket string
	Object string
	Min    *float64
	Max    *float64
}

func (q DataQuery) values() url.Values {
	v := url.Values{}
	v.Set("bucket", q.Bucket)
	v.Set("object", q.Object)
	if q.Min != nil {
		v.Set("min_date", strconv.FormatFloat(*q.Min, 'g', -1, 64))
	}
	if q.Max != nil {
		v.Set("max_date", strconv.FormatFloat(*q.Max, 'g', -1, 64))
	}
	return v
}

// ListSessions returns every live session.
func (c *Client) ListSessions(ctx context.Context) ([]profiler.Session, error) {
	var sessions []profiler.Session
	if err := c.do(ctx, http.MethodGet, "/api/profiler", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession registers a new session.
func (c *Client) CreateSession(ctx context.Context) (profiler.Session, error) {
	var sess profiler.Session
	err := c.do(ctx, http.MethodPost, "/api/profiler", nil, &sess)
	return sess, err
}

// DescribeSession looks up one session.
func (c *Client) DescribeSession(ctx context.Context, id string) (profiler.Session, error) {
	var sess profiler.Session
	err := c.do(ctx, http.MethodGet, "/api/profiler/"+url.PathEscape(id), nil, &sess)
	return sess, err
}

// TerminateSession removes a session. A missing session yields ErrNotFound.
func (c *Client) TerminateSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/profiler/"+url.PathEscape(id), nil, nil)
}

// FetchData retrieves a filtered dataset.
func (c *Client) FetchData(ctx context.Context, q DataQuery) ([]timeseries.DataPoint, error) {
	var points []timeseries.DataPoint
	if err := c.do(ctx, http.MethodGet, "/profiler/data", q.values(), &points); err != nil {
		return nil, err
	}
	return points, nil
}

// Health returns the decoded /healthz document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call smprofiler at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	apiErr := &APIError{Status: resp.StatusCode}
	var payload api.ErrorBody
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Code != "" {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

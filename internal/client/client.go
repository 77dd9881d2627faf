// Package client is a small HTTP client for the scanhub API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
	"github.com/raysh454/scanhub/internal/server"
	"github.com/raysh454/scanhub/internal/status"
)

const defaultServerURL = "http://localhost:8080"

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unavailable reports whether the server said the queue backend is down.
func (e *APIError) Unavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// IsUnavailable reports whether err is an APIError for a down queue.
func IsUnavailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Unavailable()
}

// Client talks to one scanhub server as one identity.
type Client struct {
	baseURL    string
	token      string
	owner      string
	role       string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken authenticates with a bearer token.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithOwner sends X-Owner-ID, for servers running without a JWT secret.
func WithOwner(owner string) Option { return func(c *Client) { c.owner = owner } }

// WithRole sends X-Role alongside WithOwner.
func WithRole(role string) Option { return func(c *Client) { c.role = role } }

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// New creates a client. If baseURL is empty, SCANHUB_SERVER_URL or
// http://localhost:8080 is used.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SCANHUB_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.owner != "" {
		req.Header.Set("X-Owner-ID", c.owner)
	}
	if c.role != "" {
		req.Header.Set("X-Role", c.role)
	}
	return req, nil
}

// do sends the request and returns the raw body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e server.ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return body, resp.Header, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	req, err := c.newRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// SubmitScan queues a scan.
func (c *Client) SubmitScan(ctx context.Context, req server.ScanRequest) (*server.ScanAcceptedResponse, error) {
	var out server.ScanAcceptedResponse
	if err := c.call(ctx, http.MethodPost, "/scans", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Job fetches one job.
func (c *Client) Job(ctx context.Context, id string) (*model.JobSummary, error) {
	var out model.JobSummary
	if err := c.call(ctx, http.MethodGet, "/scans/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// QueueStatus fetches queue introspection.
func (c *Client) QueueStatus(ctx context.Context) (*queue.QueueStatus, error) {
	var out queue.QueueStatus
	if err := c.call(ctx, http.MethodGet, "/scans/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the aggregated snapshot.
func (c *Client) Status(ctx context.Context) (*status.Snapshot, error) {
	var out status.Snapshot
	if err := c.call(ctx, http.MethodGet, "/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reports lists report artifacts.
func (c *Client) Reports(ctx context.Context) ([]model.ReportArtifact, error) {
	var out []model.ReportArtifact
	if err := c.call(ctx, http.MethodGet, "/reports", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Report downloads an artifact and its content type.
func (c *Client) Report(ctx context.Context, reportType string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/reports/"+url.PathEscape(reportType), nil)
	if err != nil {
		return nil, "", err
	}
	body, hdr, err := c.do(req)
	if err != nil {
		return nil, "", err
	}
	return body, hdr.Get("Content-Type"), nil
}

// ReportDiff compares the artifact with its previous run.
func (c *Client) ReportDiff(ctx context.Context, reportType string) (*model.ReportDiff, error) {
	var out model.ReportDiff
	if err := c.call(ctx, http.MethodGet, "/reports/"+url.PathEscape(reportType)+"/diff", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AlertQuery filters Alerts. Zero values are omitted.
type AlertQuery struct {
	Status   model.AlertStatus
	Severity model.Severity
	JobID    string
	Limit    int
}

// Alerts lists the caller's alerts.
func (c *Client) Alerts(ctx context.Context, q AlertQuery) ([]model.Alert, error) {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Severity != "" {
		v.Set("severity", string(q.Severity))
	}
	if q.JobID != "" {
		v.Set("jobId", q.JobID)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/alerts"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out []model.Alert
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAlert moves an alert to next.
func (c *Client) UpdateAlert(ctx context.Context, id string, next model.AlertStatus) (*model.Alert, error) {
	var out model.Alert
	if err := c.call(ctx, http.MethodPatch, "/alerts/"+url.PathEscape(id), server.AlertStatusRequest{Status: next}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetQueue asks the server to reconnect its queue backend. Admin only.
func (c *Client) ResetQueue(ctx context.Context) (*server.ResetResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/admin/queue/reset", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var out server.ResetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "unreadable reset response"}
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return &out, nil
	case http.StatusServiceUnavailable:
		return &out, &APIError{StatusCode: resp.StatusCode, Message: out.Error}
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Error}
	}
}

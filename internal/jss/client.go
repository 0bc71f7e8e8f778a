// Package jss talks to the job status service that tracks every upload.
package jss

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/retry"
)

const (
	basePath           = "/jss/1.0"
	defaultRequestRate = 10
	maxMessageLength   = 300
)

// Client handles API calls to the job status service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	policy   retry.Policy
	notifier alerts.Notifier
	limiter  *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithNotifier sets where retry warnings and recoveries are reported.
func WithNotifier(n alerts.Notifier) Option {
	return func(c *Client) { c.notifier = n }
}

// WithRequestRate caps outbound requests per second. Zero or less disables
// the cap.
func WithRequestRate(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond)))
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy:  retry.DefaultPolicy(),
		limiter: rate.NewLimiter(rate.Limit(defaultRequestRate), defaultRequestRate),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError represents an error response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) HTTPStatus() int { return e.StatusCode }

var messagePolicy = bluemonday.StrictPolicy()

// errorMessage turns a response body into a one-line message. Gateways tend
// to answer with whole HTML pages.
func errorMessage(body []byte) string {
	text := html.UnescapeString(string(messagePolicy.SanitizeBytes(body)))
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength] + "..."
	}
	return text
}

// CreateJob sends POST /job to register a new upload job.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	if req.Service == "" {
		req.Service = ServiceName
	}
	if req.Status == "" {
		req.Status = jobs.StatusWaiting
	}
	var result CreateJobResponse
	if err := c.do(ctx, "create job", http.MethodPost, "/job", req, &result); err != nil {
		return nil, err
	}
	if result.JobID == "" {
		return nil, fmt.Errorf("create job: response carried no job id")
	}
	return &result, nil
}

// UpdateJob sends PATCH /job/{id} and returns the updated record.
func (c *Client) UpdateJob(ctx context.Context, jobID string, req UpdateJobRequest) (*jobs.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("update job: job id is required")
	}
	var result jobs.Job
	if err := c.do(ctx, "update job", http.MethodPatch, "/job/"+url.PathEscape(jobID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RetryJob asks the service to run a failed job again.
func (c *Client) RetryJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	return c.UpdateJob(ctx, jobID, UpdateJobRequest{Status: jobs.StatusRetrying})
}

// CancelJob marks a job as never to be completed.
func (c *Client) CancelJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	return c.UpdateJob(ctx, jobID, UpdateJobRequest{
		Status:        jobs.StatusUnrecoverable,
		ServiceFields: &jobs.ServiceFields{Error: "Cancelled by user"},
	})
}

// ListJobs sends GET /job?user= and returns every job owned by user.
func (c *Client) ListJobs(ctx context.Context, user string) ([]jobs.Job, error) {
	q := url.Values{}
	q.Set("user", user)
	body, err := retry.Do(ctx, "list jobs", c.policy, c.notifier, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, http.MethodGet, "/job?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, err
	}
	list, err := jobs.DecodeJobs(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return list, nil
}

// EventsURL is the server-push subscription for user's job changes.
func (c *Client) EventsURL(user string) string {
	return fmt.Sprintf("%s%s/job/subscribe/%s", c.BaseURL, basePath, url.PathEscape(user))
}

func (c *Client) do(ctx context.Context, name, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = jobs.EncodeWire(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	body, err := retry.Do(ctx, name, c.policy, c.notifier, func(ctx context.Context) ([]byte, error) {
		return c.send(ctx, method, path, payload)
	})
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := jobs.DecodeWire(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// send performs a single attempt.
func (c *Client) send(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+basePath+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Add("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

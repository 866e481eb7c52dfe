// Package httpx provides an HTTP client balanced across multiple base URLs.
//
// The client builds one operation per request and hands it to the balancer;
// timeout enforcement lives entirely in the underlying http.Client, never in
// the balancer itself.
package httpx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/failover/internal/balance"
	"github.com/vietddude/failover/internal/metrics"
)

// StatusError is returned for responses with status >= 400. It carries the
// status code for the balancer's fatal classifier.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// HTTPStatus implements balance.StatusCoder.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Response is the successful outcome of a balanced request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Endpoint   string
}

// Client sends HTTP requests to balanced endpoints.
type Client struct {
	name     string
	balancer *balance.Balancer[string]
	http     *http.Client
}

// New builds a balanced HTTP client named name over the given base URLs.
// timeout bounds every single attempt; zero means no per-attempt timeout.
// Balancer options (policy, retries, classifier, hooks) pass through as-is.
func New(name string, endpoints []string, timeout time.Duration, opts ...balance.Option[string]) (*Client, error) {
	b, err := balance.New(endpoints, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{
		name:     name,
		balancer: b,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Get issues a balanced GET for path.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post issues a balanced POST for path with the given body.
func (c *Client) Post(ctx context.Context, path string, body []byte, header http.Header) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, header)
}

// Do sends the request to balanced endpoints until one succeeds. Each
// attempt carries the same X-Request-ID so retries can be correlated across
// upstream logs.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	requestID := uuid.New().String()

	result, err := c.balancer.Request(ctx, func(ctx context.Context, endpoint string) (any, error) {
		return c.do(ctx, endpoint, method, path, body, header, requestID)
	})
	if err != nil {
		c.recordOutcome(err)
		return nil, err
	}
	metrics.RequestsTotal.WithLabelValues(c.name, "success").Inc()
	return result.(*Response), nil
}

// Stats exposes the balancer's health projection for this client.
func (c *Client) Stats() map[string]string {
	return c.balancer.Stats()
}

// Endpoints returns the balanced base URLs.
func (c *Client) Endpoints() []string {
	return c.balancer.Endpoints()
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body []byte, header http.Header, requestID string) (*Response, error) {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, joinURL(endpoint, path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		c.recordAttempt(endpoint, "retry", start)
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordAttempt(endpoint, "retry", start)
		return nil, fmt.Errorf("read response from %s: %w", endpoint, err)
	}

	if resp.StatusCode >= 400 {
		statusErr := &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 200)}
		outcome := "retry"
		if balance.DefaultFatal(statusErr) {
			outcome = "fatal"
		}
		c.recordAttempt(endpoint, outcome, start)
		return nil, statusErr
	}

	c.recordAttempt(endpoint, "success", start)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
		Endpoint:   endpoint,
	}, nil
}

func (c *Client) recordAttempt(endpoint, outcome string, start time.Time) {
	metrics.AttemptsTotal.WithLabelValues(c.name, endpoint, outcome).Inc()
	metrics.AttemptLatency.WithLabelValues(c.name, endpoint).Observe(time.Since(start).Seconds())
}

func (c *Client) recordOutcome(err error) {
	var noResult *balance.NoResultError
	if errors.As(err, &noResult) {
		metrics.RequestsTotal.WithLabelValues(c.name, "no_result").Inc()
		return
	}
	metrics.RequestsTotal.WithLabelValues(c.name, "fatal").Inc()
}

func joinURL(endpoint, path string) string {
	if path == "" {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

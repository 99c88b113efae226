// Package transport executes the pipeline's HTTP calls. It owns the
// connection-reusing client, the optional proxy, per-call timeouts, and
// error classification; everything above it works with status + body only.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sahil520021/naukri-scraper/pkg/logging"
)

// Prometheus metrics for upstream calls.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resdex_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resdex_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of call failures.
type ErrorClass string

const (
	// ErrorClassClient represents non-retryable 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429/403 rate-limit or block signals.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// Classify categorizes a call outcome for retry policy and observability.
func Classify(status int, err error) ErrorClass {
	if err != nil {
		return ErrorClassNetwork
	}
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// StatusError reports a non-success HTTP status where the caller's policy
// treats it as terminal.
type StatusError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s error (status %d): %s", e.Class, e.StatusCode, e.Message)
}

// Error wraps a transport-level failure (timeout, connection error, DNS).
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the backend's answer to a single call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport executes one HTTP call. Implementations must honor the context
// and return a *Error on timeout, connection error, or DNS failure.
type Transport interface {
	Send(ctx context.Context, method, url string, headers map[string]string, body any) (*Response, error)
}

// Config holds HTTP transport configuration.
type Config struct {
	// Timeout bounds every individual call.
	Timeout time.Duration

	// ProxyURL optionally routes all calls through a proxy, unmodified.
	ProxyURL string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}

// HTTPTransport is the production Transport backed by a shared net/http
// client. One instance is shared read-mostly across all calls in a run.
type HTTPTransport struct {
	client *http.Client
	logger zerolog.Logger
}

// New creates an HTTP transport.
func New(cfg Config) (*HTTPTransport, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	inner := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		inner.Proxy = http.ProxyURL(proxy)
	}

	return &HTTPTransport{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: inner,
		},
		logger: logging.NewLogger("transport"),
	}, nil
}

// Send executes one HTTP call with a JSON body. Non-2xx statuses are not
// errors at this layer; callers interpret the status per their own policy.
func (t *HTTPTransport) Send(ctx context.Context, method, rawURL string, headers map[string]string, body any) (*Response, error) {
	endpoint := endpointLabel(rawURL)

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		t.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &Error{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &Error{URL: rawURL, Err: err}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	if class := Classify(resp.StatusCode, nil); class != "" {
		errorsTotal.WithLabelValues(string(class)).Inc()
		t.logger.Warn().
			Str("endpoint", endpoint).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Upstream returned error status")
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// endpointLabel reduces a URL to its path for metric labels, keeping
// cardinality bounded.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return u.Path
}

// Package httputil provides the resilient HTTP transport used by the API
// client: per-attempt timeouts, bounded retries of transport failures and
// content-type aware decoding.
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/FulloMyself/tasselgroupreact/internal/metrics"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

// RequestIDHeader is sent on every attempt of a logical request.
const RequestIDHeader = "X-Request-ID"

const (
	maxErrorBody    = 64 << 10
	maxResponseBody = 8 << 20
)

// =============================================================================
// Configuration
// =============================================================================

// RetryConfig configures the retry loop. Delay is fixed between attempts.
type RetryConfig struct {
	MaxRetries int
	Delay      time.Duration
	Timeout    time.Duration
}

// DefaultRetryConfig returns 2 retries, 300ms apart, 10s per attempt.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		Delay:      300 * time.Millisecond,
		Timeout:    10 * time.Second,
	}
}

// Config configures a Transport.
type Config struct {
	HTTPClient *http.Client
	Retry      RetryConfig

	// RequestsPerSecond throttles outgoing attempts. Zero disables it.
	RequestsPerSecond float64
	Burst             int

	Logger *logger.Logger
}

// Transport performs requests with retries. It is safe for concurrent use.
type Transport struct {
	client  *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewTransport creates a transport. A zero RetryConfig selects the defaults;
// a zero Timeout alone selects the default timeout.
func NewTransport(cfg Config) *Transport {
	retry := cfg.Retry
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	if retry.Timeout <= 0 {
		retry.Timeout = DefaultRetryConfig().Timeout
	}
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("transport")
	}

	t := &Transport{client: client, retry: retry, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return t
}

// RetryConfig returns the effective retry configuration.
func (t *Transport) RetryConfig() RetryConfig {
	return t.retry
}

// =============================================================================
// Request / Result
// =============================================================================

// Request is one logical HTTP call. Body is replayed on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// NewJSONRequest marshals body and sets the JSON content type.
func NewJSONRequest(method, url string, body interface{}) (*Request, error) {
	req := &Request{Method: method, URL: url, Header: make(http.Header)}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		req.Body = data
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Result is a successful (2xx) response.
type Result struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	IsJSON      bool
}

// Decode unmarshals a JSON body into v.
func (r *Result) Decode(v interface{}) error {
	if !r.IsJSON {
		return fmt.Errorf("decode response: content type %q is not JSON", r.ContentType)
	}
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return fmt.Errorf("decode response: empty body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Get looks up a gjson path in a JSON body. Non-JSON bodies never match.
func (r *Result) Get(path string) gjson.Result {
	if !r.IsJSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Text returns the body as a string.
func (r *Result) Text() string {
	return string(r.Body)
}

func isJSONContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "application/json") || strings.Contains(ct, "+json")
}

// =============================================================================
// Sending
// =============================================================================

// Send performs req with the configured retries and timeout.
func (t *Transport) Send(ctx context.Context, req *Request) (*Result, error) {
	return t.SendWith(ctx, req, t.retry.MaxRetries, t.retry.Timeout)
}

// SendWith performs req making at most retries+1 attempts, each bounded by
// timeout. Only transport failures are retried; any HTTP response, 2xx or
// not, ends the loop. Cancellation of ctx ends the loop immediately.
func (t *Transport) SendWith(ctx context.Context, req *Request, retries int, timeout time.Duration) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if retries < 0 {
		retries = 0
	}
	if timeout <= 0 {
		timeout = t.retry.Timeout
	}

	requestID := logger.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			metrics.RecordRetry(retryReason(lastErr))
			t.log.WithContext(ctx).WithFields(map[string]interface{}{
				"attempt": attempt + 1,
				"url":     req.URL,
			}).WithError(lastErr).Warn("retrying request")

			if err := wait(ctx, t.retry.Delay); err != nil {
				return nil, &TransportError{Op: "wait", URL: req.URL, Err: err, timeout: errors.Is(err, context.DeadlineExceeded)}
			}
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, &TransportError{Op: "throttle", URL: req.URL, Err: err, timeout: errors.Is(err, context.DeadlineExceeded)}
			}
		}

		res, err := t.do(ctx, req, requestID, timeout)
		if err == nil {
			return res, nil
		}
		if !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}

	t.log.WithContext(ctx).WithField("url", req.URL).WithError(lastErr).Error("request failed after retries")
	return nil, lastErr
}

func (t *Transport) do(ctx context.Context, req *Request, requestID string, timeout time.Duration) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	httpReq.Header.Set(RequestIDHeader, requestID)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json, text/plain, */*")
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		metrics.RecordAttempt(method, req.URL, 0, time.Since(start))
		return nil, attemptError(ctx, attemptCtx, "send", req.URL, err)
	}
	defer resp.Body.Close()
	metrics.RecordAttempt(method, req.URL, resp.StatusCode, time.Since(start))

	contentType := resp.Header.Get("Content-Type")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, truncated, _ := ReadAllWithLimit(resp.Body, maxErrorBody)
		return nil, newHTTPStatusError(resp.StatusCode, data, truncated)
	}

	data, err := ReadAllStrict(resp.Body, maxResponseBody)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, err
		}
		return nil, attemptError(ctx, attemptCtx, "read", req.URL, err)
	}

	res := &Result{
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Header:      resp.Header,
		Body:        data,
	}
	if isJSONContentType(contentType) {
		if len(bytes.TrimSpace(data)) > 0 && !gjson.ValidBytes(data) {
			return nil, fmt.Errorf("decode response: invalid JSON body")
		}
		res.IsJSON = true
	}
	return res, nil
}

// attemptError distinguishes caller cancellation from an attempt timeout
// from a plain connection failure.
func attemptError(parent, attempt context.Context, op, url string, err error) error {
	if perr := parent.Err(); perr != nil {
		return &TransportError{Op: op, URL: url, Err: perr, timeout: errors.Is(perr, context.DeadlineExceeded)}
	}
	if errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return &TransportError{Op: op, URL: url, Err: err, timeout: true}
	}
	return &TransportError{Op: op, URL: url, Err: err}
}

func retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func retryReason(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Timeout() {
		return "timeout"
	}
	return "connectivity"
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

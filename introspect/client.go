// Package introspect performs outbound identity-introspection calls with a
// per-attempt deadline and bounded exponential backoff. It is provider
// agnostic: callers describe the request and decide which responses are
// worth retrying, and they interpret the returned status and body themselves.
package introspect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxBodyBytes bounds how much of a provider response is read.
	DefaultMaxBodyBytes int64 = 1 << 20

	maxBackoffInterval = 30 * time.Second
)

var (
	// ErrRequestTimeout is returned when an attempt exceeds its deadline or
	// the caller's context is cancelled.
	ErrRequestTimeout = errors.New("introspection request timed out")

	// ErrTransport is returned when every attempt failed before a response
	// was received.
	ErrTransport = errors.New("introspection transport failure")
)

// Logger defines an optional logging interface compatible with log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config bounds a single logical call.
type Config struct {
	// Timeout is the deadline of each attempt. Must be > 0.
	Timeout time.Duration
	// MaxRetries is the number of additional attempts after the first. Must be >= 0.
	MaxRetries int
	// BaseBackoff is the wait before the first retry; it doubles after each retry.
	BaseBackoff time.Duration
}

// Validate reports whether the configuration is usable.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than zero, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.BaseBackoff < 0 {
		return fmt.Errorf("base backoff cannot be negative, got %s", c.BaseBackoff)
	}
	return nil
}

// Request describes one provider call.
type Request struct {
	// Method defaults to GET.
	Method string
	URL    string
	Header http.Header
	// Retryable flags responses that should be retried, such as HTTP 429.
	// Responses it does not flag are returned to the caller immediately.
	Retryable func(*Response) bool
}

// Response is the raw provider answer.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Attempts is the number of attempts made to obtain this response.
	Attempts int
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	// Attempt is the 1-based number of the attempt that just failed.
	Attempt int
	// Wait is the backoff before the next attempt.
	Wait time.Duration
	// StatusCode is set when the failed attempt produced a retryable response.
	StatusCode int
	Err        error
}

// Client executes introspection requests. It is safe for concurrent use.
type Client struct {
	httpClient   *http.Client
	logger       Logger
	userAgent    string
	maxBodyBytes int64
	onRetry      func(RetryEvent)
}

// New creates a Client.
//
// Example:
//
//	client, err := introspect.New(
//	    introspect.WithUserAgent("my-api/1.0"),
//	    introspect.WithLogger(slog.Default()),
//	)
func New(opts ...Option) (*Client, error) {
	c := &Client{
		httpClient:   &http.Client{},
		maxBodyBytes: DefaultMaxBodyBytes,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}

	return c, nil
}

type retryableStatusError struct {
	status int
}

func (e *retryableStatusError) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

// Do performs req, retrying transport failures and flagged responses up to
// cfg.MaxRetries times with exponential backoff. Retries are sequential.
//
// When retries are exhausted on a flagged response, that last response is
// returned with a nil error so the caller can classify it. Timeouts and
// caller cancellation are never retried and return ErrRequestTimeout.
func (c *Client) Do(ctx context.Context, req Request, cfg Config) (*Response, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid introspection config: %w", err)
	}

	var (
		attempts int
		last     *Response
	)

	operation := func() (*Response, error) {
		attempts++
		resp, err := c.attempt(ctx, req, cfg.Timeout)
		if err != nil {
			if errors.Is(err, ErrRequestTimeout) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		resp.Attempts = attempts
		if req.Retryable != nil && req.Retryable(resp) {
			last = resp
			return nil, &retryableStatusError{status: resp.StatusCode}
		}
		last = nil
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		event := RetryEvent{Attempt: attempts, Wait: wait, Err: err}
		var rse *retryableStatusError
		if errors.As(err, &rse) {
			event.StatusCode = rse.status
		}
		if c.logger != nil {
			c.logger.Warn("introspection attempt failed, retrying",
				"attempt", event.Attempt,
				"status", event.StatusCode,
				"wait", wait,
				"error", err)
		}
		if c.onRetry != nil {
			c.onRetry(event)
		}
	}

	resp, err := backoff.RetryNotifyWithData(operation, c.policy(ctx, cfg), notify)
	if err == nil {
		return resp, nil
	}

	var rse *retryableStatusError
	if errors.As(err, &rse) && last != nil {
		return last, nil
	}
	if errors.Is(err, ErrRequestTimeout) {
		return nil, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, ctxErr)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrTransport, attempts, err)
}

// policy returns base*2^n backoff without jitter, capped at cfg.MaxRetries
// retries and bound to ctx.
func (c *Client) policy(ctx context.Context, cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.BaseBackoff
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxBackoffInterval
	if cfg.BaseBackoff > b.MaxInterval {
		b.MaxInterval = cfg.BaseBackoff
	}
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx)
}

func (c *Client) attempt(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, req.URL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if timedOut(ctx, attemptCtx) {
			return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		if timedOut(ctx, attemptCtx) {
			return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, err)
		}
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func timedOut(parent, attempt context.Context) bool {
	return parent.Err() != nil || errors.Is(attempt.Err(), context.DeadlineExceeded)
}

// RetryOnStatus returns a Retryable func that flags the given status codes.
func RetryOnStatus(codes ...int) func(*Response) bool {
	set := make(map[int]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	return func(r *Response) bool {
		_, ok := set[r.StatusCode]
		return ok
	}
}

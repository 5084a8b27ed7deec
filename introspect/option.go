package introspect

import (
	"errors"
	"net/http"
)

// Option configures the Client.
type Option func(*Client) error

// WithHTTPClient sets the HTTP client used for every attempt. Per-attempt
// deadlines are applied through the request context, so the client's own
// Timeout may be left unset.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithLogger sets an optional logger. Retries are logged at warn level.
func WithLogger(logger Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithUserAgent sets a default User-Agent for requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// WithMaxBodyBytes bounds how much of each response body is read.
//
// Default: 1 MiB
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) error {
		if n <= 0 {
			return errors.New("max body bytes must be greater than zero")
		}
		c.maxBodyBytes = n
		return nil
	}
}

// WithRetryHook registers a callback invoked before each retry.
func WithRetryHook(hook func(RetryEvent)) Option {
	return func(c *Client) error {
		if hook == nil {
			return errors.New("retry hook cannot be nil")
		}
		c.onRetry = hook
		return nil
	}
}

package tokengrpc

import (
	"context"
	"errors"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// Option defines a functional option for configuring the Interceptor.
type Option func(*Interceptor) error

// WithPolicy sets the policy applied to every non-excluded method.
func WithPolicy(p core.Policy) Option {
	return func(i *Interceptor) error {
		i.policy = p
		return nil
	}
}

// WithHeaderSource sets where the Authorization value is read from.
//
// Default: MetadataHeaderSource
func WithHeaderSource(source HeaderSource) Option {
	return func(i *Interceptor) error {
		if source == nil {
			return errors.New("header source cannot be nil")
		}
		i.headerSource = source
		return nil
	}
}

// WithExcludedMethods skips verification for the given full method names.
func WithExcludedMethods(methods ...string) Option {
	methodSet := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		methodSet[m] = struct{}{}
	}
	return func(i *Interceptor) error {
		if len(methodSet) == 0 {
			return errors.New("excluded methods cannot be empty")
		}
		i.exclusionChecker = func(method string) bool {
			_, ok := methodSet[method]
			return ok
		}
		return nil
	}
}

// WithExclusionChecker sets a custom exclusion checker for full method names.
func WithExclusionChecker(checker func(method string) bool) Option {
	return func(i *Interceptor) error {
		if checker == nil {
			return errors.New("exclusion checker cannot be nil")
		}
		i.exclusionChecker = checker
		return nil
	}
}

// WithErrorHandler converts a rejection into the error returned to the
// client.
//
// Default: Status
func WithErrorHandler(handler func(ctx context.Context, err error) error) Option {
	return func(i *Interceptor) error {
		if handler == nil {
			return errors.New("error handler cannot be nil")
		}
		i.errorHandler = handler
		return nil
	}
}

// WithLogger sets an optional logger.
func WithLogger(logger core.Logger) Option {
	return func(i *Interceptor) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		i.logger = logger
		return nil
	}
}

// Package tokengrpc adapts the verification engine to gRPC servers.
package tokengrpc

import (
	"context"
	"errors"
	"math"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// Interceptor verifies the credential of each call before the handler runs.
type Interceptor struct {
	core             *core.Core
	policy           core.Policy
	headerSource     HeaderSource
	exclusionChecker func(method string) bool
	errorHandler     func(ctx context.Context, err error) error
	logger           core.Logger
}

// New creates an Interceptor around engine.
//
// Example:
//
//	interceptor, err := tokengrpc.New(engine.Core,
//	    tokengrpc.WithExcludedMethods("/grpc.health.v1.Health/Check"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	server := grpc.NewServer(
//	    grpc.UnaryInterceptor(interceptor.UnaryServerInterceptor()),
//	    grpc.StreamInterceptor(interceptor.StreamServerInterceptor()),
//	)
func New(engine *core.Core, opts ...Option) (*Interceptor, error) {
	if engine == nil {
		return nil, errors.New("core cannot be nil")
	}

	i := &Interceptor{
		core:         engine,
		headerSource: MetadataHeaderSource,
		errorHandler: Status,
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	return i, nil
}

// authenticate returns ctx carrying the verified identity, ctx unchanged for
// excluded methods and anonymous calls, or the rejection error.
func (i *Interceptor) authenticate(ctx context.Context, method string) (context.Context, error) {
	if i.exclusionChecker != nil && i.exclusionChecker(method) {
		if i.logger != nil {
			i.logger.Debug("method excluded from token verification", "method", method)
		}
		return ctx, nil
	}

	outcome := i.core.Verify(ctx, i.headerSource(ctx), i.policy)

	switch outcome.Status {
	case core.StatusSuccess:
		return core.SetIdentity(ctx, *outcome.Identity), nil
	case core.StatusNoCredential:
		return ctx, nil
	default:
		if i.logger != nil {
			i.logger.Debug("rejecting call", "method", method, "kind", string(outcome.Kind()))
		}
		return nil, i.errorHandler(ctx, outcome.Err)
	}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor.
func (i *Interceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authCtx, err := i.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor.
func (i *Interceptor) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := i.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: authCtx})
	}
}

// wrappedServerStream wraps a grpc.ServerStream to override the context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// Code maps a rejection kind to a gRPC status code.
func Code(kind core.ErrorKind) codes.Code {
	switch kind {
	case core.KindCredentialMissing, core.KindMalformedToken, core.KindUnknownProvider, core.KindInvalidOrInsufficientToken:
		return codes.Unauthenticated
	case core.KindMalformedHeader:
		return codes.InvalidArgument
	case core.KindProviderRestricted:
		return codes.PermissionDenied
	case core.KindRequestTimeout:
		return codes.DeadlineExceeded
	case core.KindRateLimited:
		return codes.ResourceExhausted
	default:
		return codes.Unavailable
	}
}

// Status is the default error handler. It converts err into a gRPC status
// error and, for rate-limited calls, sends a retry-after header in seconds.
func Status(ctx context.Context, err error) error {
	var verr *core.VerificationError
	if !errors.As(err, &verr) {
		return status.Error(codes.Internal, "token verification failed")
	}

	code := Code(verr.Kind)
	if verr.Insufficient() {
		code = codes.PermissionDenied
	}
	if verr.Kind == core.KindRateLimited && verr.RetryAfter > 0 {
		seconds := strconv.Itoa(int(math.Ceil(verr.RetryAfter.Seconds())))
		// Fails outside a server transport, e.g. in unit tests.
		_ = grpc.SetHeader(ctx, metadata.Pairs("retry-after", seconds))
	}

	msg := verr.Message
	if msg == "" {
		msg = string(verr.Kind)
	}
	return status.Error(code, msg)
}

// IdentityFromContext returns the identity attached by the interceptor.
func IdentityFromContext(ctx context.Context) (core.Identity, error) {
	return core.GetIdentity(ctx)
}

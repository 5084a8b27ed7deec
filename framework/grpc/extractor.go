package tokengrpc

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// HeaderSource returns the Authorization value to verify for a call. An empty
// string means no credential was presented.
type HeaderSource func(ctx context.Context) string

// MetadataHeaderSource reads the "authorization" metadata field.
func MetadataHeaderSource(ctx context.Context) string {
	return MetadataFieldHeaderSource("authorization")(ctx)
}

// MetadataFieldHeaderSource reads the first value of the named metadata field.
func MetadataFieldHeaderSource(field string) HeaderSource {
	return func(ctx context.Context) string {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return ""
		}
		values := md.Get(field)
		if len(values) == 0 {
			return ""
		}
		return values[0]
	}
}

// MultiHeaderSource returns the first non-empty value of sources.
func MultiHeaderSource(sources ...HeaderSource) HeaderSource {
	return func(ctx context.Context) string {
		for _, s := range sources {
			if v := s(ctx); v != "" {
				return v
			}
		}
		return ""
	}
}

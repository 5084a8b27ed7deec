// Package server exposes the verification engine over HTTP for the tokengate
// command.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	tokenmiddleware "github.com/flownity-dev/flownity-backend-sub000"
	"github.com/flownity-dev/flownity-backend-sub000/core"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// New returns the tokengate routes:
//
//	GET /me       identity of the caller, credential required
//	GET /public   identity if presented, anonymous otherwise
//	GET /healthz  liveness
//	GET /metrics  Prometheus exposition of gatherer
func New(engine *core.Core, logger zerolog.Logger, gatherer prometheus.Gatherer) (http.Handler, error) {
	mwLogger := tokenmiddleware.NewZerologLogger(logger)

	required, err := tokenmiddleware.New(
		tokenmiddleware.WithCore(engine),
		tokenmiddleware.WithLogger(mwLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("building required middleware: %w", err)
	}

	optionalPolicy, err := engine.NewPolicy(core.Required(false))
	if err != nil {
		return nil, fmt.Errorf("building optional policy: %w", err)
	}
	optional, err := tokenmiddleware.New(
		tokenmiddleware.WithCore(engine),
		tokenmiddleware.WithPolicy(optionalPolicy),
		tokenmiddleware.WithLogger(mwLogger),
	)
	if err != nil {
		return nil, fmt.Errorf("building optional middleware: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /me", required.CheckToken(http.HandlerFunc(me)))
	mux.Handle("GET /public", optional.CheckToken(http.HandlerFunc(public)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return withRequestID(logger, mux), nil
}

func me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tokenmiddleware.MustGetIdentity(r.Context()))
}

type publicResponse struct {
	Authenticated bool           `json:"authenticated"`
	Identity      *core.Identity `json:"identity,omitempty"`
}

func public(w http.ResponseWriter, r *http.Request) {
	identity, err := tokenmiddleware.GetIdentity(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, publicResponse{})
		return
	}
	writeJSON(w, http.StatusOK, publicResponse{Authenticated: true, Identity: &identity})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// withRequestID tags each request with an id, taken from the request when
// the caller sent a valid one, and writes an access log line.
func withRequestID(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set(RequestIDHeader, id.String())

		reqLogger := logger.With().Str("request_id", id.String()).Logger()
		r = r.WithContext(reqLogger.WithContext(r.Context()))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		reqLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

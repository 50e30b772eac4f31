package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/gorzdrav-proxy/pkg/gorzdrav"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/logging"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/metrics"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/pool"
	"github.com/Sternrassler/gorzdrav-proxy/pkg/upstream"
)

// resultStatusHeader carries the list status ("ok" or "empty").
const resultStatusHeader = "X-Result-Status"

// errorResponse is the body of every non-2xx API response.
type errorResponse struct {
	Error  string `json:"error"`
	Code   *int   `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type parseURLResponse struct {
	Valid  bool                        `json:"valid"`
	Result *gorzdrav.LinkParsingResult `json:"result,omitempty"`
	Error  string                      `json:"error,omitempty"`
}

type linkResponse struct {
	URL string `json:"url"`
}

// server holds the HTTP handlers of the proxy.
type server struct {
	api            *gorzdrav.API
	redis          *redis.Client // nil when caching in memory
	requestTimeout time.Duration
	ready          atomic.Bool
	logger         zerolog.Logger
}

func newServer(api *gorzdrav.API, redisClient *redis.Client, requestTimeout time.Duration) *server {
	s := &server{
		api:            api,
		redis:          redisClient,
		requestTimeout: requestTimeout,
		logger:         logging.NewLogger("http"),
	}
	s.ready.Store(true)
	return s
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	handle := func(route string, h http.HandlerFunc) {
		mux.Handle("GET "+route, metrics.Instrument(route, h))
	}

	handle("/districts", s.handleDistricts)
	handle("/lpus", s.handleLPUs)
	handle("/specialties", s.handleSpecialties)
	handle("/doctors", s.handleDoctors)
	handle("/appointments", s.handleAppointments)
	handle("/link", s.handleLink)
	handle("/parse-url", s.handleParseURL)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports 503 while shutting down or when Redis is unreachable.
func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed: redis unreachable")
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func (s *server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	districts, err := s.api.Districts(ctx)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, districts)
}

func (s *server) handleLPUs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	var districtID *string
	if v := r.URL.Query().Get("district_id"); v != "" {
		districtID = &v
	}

	lpus, err := s.api.LPUs(ctx, districtID)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lpus)
}

func (s *server) handleSpecialties(w http.ResponseWriter, r *http.Request) {
	lpuID, ok := intParam(w, r, "lpu_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	list, err := s.api.Specialties(ctx, lpuID)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeList(w, list)
}

func (s *server) handleDoctors(w http.ResponseWriter, r *http.Request) {
	lpuID, ok := intParam(w, r, "lpu_id")
	if !ok {
		return
	}
	specialtyID, ok := stringParam(w, r, "specialty_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	list, err := s.api.Doctors(ctx, lpuID, specialtyID)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeList(w, list)
}

func (s *server) handleAppointments(w http.ResponseWriter, r *http.Request) {
	lpuID, ok := intParam(w, r, "lpu_id")
	if !ok {
		return
	}
	doctorID, ok := stringParam(w, r, "doctor_id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	list, err := s.api.Appointments(ctx, lpuID, doctorID)
	if err != nil {
		s.writeUpstreamError(w, r, err)
		return
	}
	writeList(w, list)
}

func (s *server) handleLink(w http.ResponseWriter, r *http.Request) {
	districtID, ok := stringParam(w, r, "district_id")
	if !ok {
		return
	}
	lpuID, ok := intParam(w, r, "lpu_id")
	if !ok {
		return
	}
	specialtyID, ok := stringParam(w, r, "specialty_id")
	if !ok {
		return
	}
	doctorID, ok := stringParam(w, r, "doctor_id")
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, linkResponse{
		URL: gorzdrav.GenerateLink(districtID, lpuID, specialtyID, doctorID),
	})
}

// handleParseURL answers 200 with valid=false for links without identifiers.
func (s *server) handleParseURL(w http.ResponseWriter, r *http.Request) {
	raw, ok := stringParam(w, r, "url")
	if !ok {
		return
	}

	res, err := gorzdrav.ParseLink(raw)
	if err != nil {
		writeJSON(w, http.StatusOK, parseURLResponse{
			Valid: false,
			Error: "URL does not contain valid Gorzdrav appointment parameters",
		})
		return
	}
	writeJSON(w, http.StatusOK, parseURLResponse{Valid: true, Result: res})
}

// writeUpstreamError maps a failed request to a status code: domain errors
// are the client's problem (400), everything else is a gateway failure.
func (s *server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	var upErr *upstream.Error
	switch {
	case errors.As(err, &upErr) && upErr.Kind == upstream.KindDomain:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "API Error", Code: upErr.Code, Detail: upErr.Message})
		return
	case errors.Is(err, pool.ErrPoolClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "Unavailable", Detail: "server is shutting down"})
		return
	case r.Context().Err() != nil:
		// client went away, nobody reads the body
		return
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, upstream.ErrContextCancelled):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "Timeout", Detail: err.Error()})
		return
	}

	s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Upstream request failed")
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: "Upstream Error", Detail: err.Error()})
}

func writeList[T any](w http.ResponseWriter, list gorzdrav.List[T]) {
	w.Header().Set(resultStatusHeader, string(list.Status))
	writeJSON(w, http.StatusOK, list.Items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func stringParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid Parameter", Detail: name + " is required"})
		return "", false
	}
	return v, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw, ok := stringParam(w, r, name)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid Parameter", Detail: name + " must be an integer"})
		return 0, false
	}
	return v, true
}

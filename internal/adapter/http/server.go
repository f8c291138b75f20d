// Package http exposes the ingest and query API plus health, readiness,
// and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kenet-project/seismic-fusion/internal/domain"
	"github.com/kenet-project/seismic-fusion/internal/observability"
)

// limiterTableSize bounds the per-device rate limiter table.
const limiterTableSize = 100_000

// Store is the persistence surface the API needs. *store.Store satisfies
// it.
type Store interface {
	RecordSignal(ctx context.Context, sig domain.Signal) error
	RefreshDeviceLocation(ctx context.Context, loc domain.DeviceLocation) error
	ListEvents(ctx context.Context, since time.Time) ([]domain.DetectedEvent, error)
	ListOfficialQuakes(ctx context.Context, since time.Time) ([]domain.OfficialQuake, error)
}

// Enqueuer schedules a fusion analysis for an accepted signal.
type Enqueuer interface {
	Enqueue(sig domain.Signal) bool
}

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the service HTTP API.
type Server struct {
	httpServer *http.Server
	store      Store
	fusion     Enqueuer
	limiter    *deviceLimiter
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// Options configures NewServer beyond its dependencies.
type Options struct {
	Addr              string
	IngestDeviceRPS   float64
	IngestDeviceBurst int
	DefaultSinceHours int
}

// NewServer creates the API server. ready is typically the fusion pool
// chained with the store.
func NewServer(opts Options, store Store, fusion Enqueuer, ready ReadinessChecker, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	if opts.DefaultSinceHours <= 0 {
		opts.DefaultSinceHours = 24
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:   store,
		fusion:  fusion,
		limiter: newDeviceLimiter(opts.IngestDeviceRPS, opts.IngestDeviceBurst, limiterTableSize),
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}

	mux.HandleFunc("POST /signals", s.handleSubmitSignal)
	mux.HandleFunc("POST /devices/location", s.handleDeviceLocation)
	mux.HandleFunc("GET /events", s.handleListEvents(opts.DefaultSinceHours, s.listDetected))
	mux.HandleFunc("GET /official-earthquakes", s.handleListEvents(opts.DefaultSinceHours, s.listOfficial))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type signalRequest struct {
	DeviceID string  `json:"device_id"`
	PGA      float64 `json:"pga"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	// Optional device-side observation time; defaults to the server clock.
	ObservedAt time.Time `json:"observed_at,omitzero"`
}

// clockSkewTolerance bounds how far ahead of the server clock a reported
// observation time may be. A future-dated signal would otherwise sit in
// the fusion window longer than real ones.
const clockSkewTolerance = time.Minute

func (r signalRequest) validate(now time.Time) error {
	if r.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if math.IsNaN(r.PGA) || math.IsInf(r.PGA, 0) || r.PGA < 0 {
		return errors.New("pga must be a non-negative finite number")
	}
	if r.Lat < -90 || r.Lat > 90 {
		return errors.New("lat must be within [-90, 90]")
	}
	if r.Lng < -180 || r.Lng > 180 {
		return errors.New("lng must be within [-180, 180]")
	}
	if !r.ObservedAt.IsZero() && r.ObservedAt.After(now.Add(clockSkewTolerance)) {
		return errors.New("observed_at is in the future")
	}
	return nil
}

// handleSubmitSignal records a signal and schedules a fusion run for it.
// Always 202 on success: acceptance says nothing about confirmation,
// which happens asynchronously.
func (s *Server) handleSubmitSignal(w http.ResponseWriter, r *http.Request) {
	var req signalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.SignalsRejected.Inc()
		writeError(w, http.StatusBadRequest, "invalid_payload", "request body is not valid JSON")
		return
	}
	now := s.clock.Now().UTC()
	if err := req.validate(now); err != nil {
		s.metrics.SignalsRejected.Inc()
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	if !s.limiter.Allow(req.DeviceID) {
		s.metrics.SignalsThrottled.Inc()
		writeError(w, http.StatusTooManyRequests, "throttled", "device is submitting too fast")
		return
	}

	observedAt := req.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}
	sig := domain.Signal{
		DeviceID:   req.DeviceID,
		PGA:        req.PGA,
		Lat:        req.Lat,
		Lng:        req.Lng,
		ObservedAt: observedAt.UTC(),
	}

	if err := s.store.RecordSignal(r.Context(), sig); err != nil {
		s.logger.Error("record signal failed", "error", err, "device_id", sig.DeviceID)
		writeError(w, http.StatusInternalServerError, "internal", "could not store signal")
		return
	}
	s.metrics.SignalsIngested.Inc()

	// Reporting a signal is evidence the device is present; keep its
	// population entry fresh without a separate location call.
	loc := domain.DeviceLocation{DeviceID: sig.DeviceID, Lat: sig.Lat, Lng: sig.Lng, LastSeen: now}
	if err := s.store.RefreshDeviceLocation(r.Context(), loc); err != nil {
		s.logger.Warn("location refresh on ingest failed", "error", err, "device_id", sig.DeviceID)
	}

	queued := s.fusion.Enqueue(sig)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "accepted",
		"queued": queued,
	})
}

type locationRequest struct {
	DeviceID string  `json:"device_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func (r locationRequest) validate() error {
	if r.DeviceID == "" {
		return errors.New("device_id is required")
	}
	if r.Lat < -90 || r.Lat > 90 {
		return errors.New("lat must be within [-90, 90]")
	}
	if r.Lng < -180 || r.Lng > 180 {
		return errors.New("lng must be within [-180, 180]")
	}
	return nil
}

func (s *Server) handleDeviceLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "request body is not valid JSON")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", err.Error())
		return
	}

	loc := domain.DeviceLocation{
		DeviceID: req.DeviceID,
		Lat:      req.Lat,
		Lng:      req.Lng,
		LastSeen: s.clock.Now().UTC(),
	}
	if err := s.store.RefreshDeviceLocation(r.Context(), loc); err != nil {
		s.logger.Error("refresh device location failed", "error", err, "device_id", req.DeviceID)
		writeError(w, http.StatusInternalServerError, "internal", "could not store location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDetected(ctx context.Context, since time.Time) (any, error) {
	events, err := s.store.ListEvents(ctx, since)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []domain.DetectedEvent{}
	}
	return map[string]any{"events": events}, nil
}

func (s *Server) listOfficial(ctx context.Context, since time.Time) (any, error) {
	quakes, err := s.store.ListOfficialQuakes(ctx, since)
	if err != nil {
		return nil, err
	}
	if quakes == nil {
		quakes = []domain.OfficialQuake{}
	}
	return map[string]any{"earthquakes": quakes}, nil
}

// handleListEvents shares the since_hours parsing between the two list
// endpoints.
func (s *Server) handleListEvents(defaultHours int, list func(ctx context.Context, since time.Time) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := defaultHours
		if v := r.URL.Query().Get("since_hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_query", "since_hours must be a positive integer")
				return
			}
			hours = n
		}
		since := s.clock.Now().Add(-time.Duration(hours) * time.Hour)

		body, err := list(r.Context(), since)
		if err != nil {
			s.logger.Error("list query failed", "error", err, "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, "internal", "could not query events")
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

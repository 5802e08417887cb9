// Package api exposes pool statistics, health and trends over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/logger"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/stats"
	"github.com/guileen/leasepool/supervisor"
)

// SampleStore reads archived samples; *archive.Archive satisfies it
type SampleStore interface {
	Range(from, to time.Time) ([]stats.Sample, error)
	Recent(n int) ([]stats.Sample, error)
}

// Ticker runs an on-demand supervision pass; *supervisor.Supervisor satisfies it
type Ticker interface {
	Tick(ctx context.Context) (supervisor.Report, error)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatsResponse struct {
	Pool     string        `json:"pool"`
	Snapshot pool.Snapshot `json:"snapshot"`
}

type TrendResponse struct {
	stats.TrendResult
	Summary stats.Summary `json:"summary"`
}

type SummaryResponse struct {
	Pool   string         `json:"pool"`
	Health health.Summary `json:"health"`
	Stats  stats.Summary  `json:"stats"`
}

// Option configures optional Handler collaborators
type Option func(*Handler)

// WithMetrics mounts h at /metrics
func WithMetrics(h http.Handler) Option {
	return func(api *Handler) { api.metrics = h }
}

// WithArchive serves archived samples from store
func WithArchive(store SampleStore) Option {
	return func(api *Handler) { api.archive = store }
}

// WithTicker enables POST /pool/check
func WithTicker(t Ticker) Option {
	return func(api *Handler) { api.ticker = t }
}

// Handler serves the read surface over a pool, its monitor and its recorder
type Handler struct {
	name     string
	source   supervisor.Source
	monitor  *health.Monitor
	recorder *stats.Recorder
	metrics  http.Handler
	archive  SampleStore
	ticker   Ticker
}

func NewHandler(name string, source supervisor.Source, monitor *health.Monitor, recorder *stats.Recorder, opts ...Option) *Handler {
	h := &Handler{
		name:     name,
		source:   source,
		monitor:  monitor,
		recorder: recorder,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/pool", func(r chi.Router) {
		r.Use(h.logContext)
		r.Get("/stats", h.GetStats)
		r.Get("/health", h.GetHealth)
		r.Get("/health/history", h.GetHealthHistory)
		r.Get("/alerts", h.GetAlerts)
		r.Delete("/alerts", h.ClearAlerts)
		r.Get("/trend", h.GetTrend)
		r.Get("/summary", h.GetSummary)
		if h.archive != nil {
			r.Get("/archive", h.GetArchive)
		}
		if h.ticker != nil {
			r.Post("/check", h.RunCheck)
		}
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{Pool: h.name, Snapshot: h.source.Statistics()})
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	verdict, ok := h.monitor.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no health checks recorded"))
		return
	}
	writeJSON(w, http.StatusOK, verdict)
}

func (h *Handler) GetHealthHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := getIntQueryParam(r, "limit", 10)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.monitor.History(limit)))
}

func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.monitor.Alerts()))
}

func (h *Handler) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	h.monitor.ClearAlerts()
	logger.InfoContext(r.Context(), "health alerts cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TrendResponse{
		TrendResult: h.recorder.Trend(),
		Summary:     h.recorder.Summary(),
	})
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SummaryResponse{
		Pool:   h.name,
		Health: h.monitor.Summary(),
		Stats:  h.recorder.Summary(),
	})
}

// GetArchive returns archived samples, either the latest ?n= samples or
// those in [?from=, ?to=) given as RFC 3339 times.
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		n, err := getIntQueryParam(r, "n", 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		samples, err := h.archive.Recent(n)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, nonNil(samples))
		return
	}

	from, err := getTimeQueryParam(r, "from", time.Unix(0, 0))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := getTimeQueryParam(r, "to", time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("from %s must be before to %s", from, to))
		return
	}

	samples, err := h.archive.Range(from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(samples))
}

func (h *Handler) RunCheck(w http.ResponseWriter, r *http.Request) {
	report, err := h.ticker.Tick(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pool.ErrPoolShutdown) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// logContext copies the pool name and chi's request id into the context keys
// read by the logger package.
func (h *Handler) logContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithContextValue(r.Context(), logger.PoolKey, h.name)
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logger.WithContextValue(ctx, logger.RequestIDKey, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error()})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) (int, error) {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", key, valueStr)
	}
	return value, nil
}

func getTimeQueryParam(r *http.Request, key string, defaultValue time.Time) (time.Time, error) {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.Parse(time.RFC3339, valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: must be an RFC 3339 time", key, valueStr)
	}
	return value, nil
}

// nonNil keeps empty lists encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

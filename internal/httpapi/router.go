// Package httpapi maps the read-only HTTP surface described in spec.md
// §6 to internal/dashboard, wiring the teacher's logging/recovery/rate-
// limit/metrics middleware chain and a /health and /metrics endpoint on
// top of a thin gorilla/mux router.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/globalmsq/msq-tx-monitor-sub002/internal/broadcast"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/dashboard"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/logging"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/metrics"
	"github.com/globalmsq/msq-tx-monitor-sub002/internal/middleware"
)

var errUnknownDirection = errors.New("httpapi: unknown address direction")

// HealthChecker reports readiness of the components the health gate
// depends on (§4.11): persistence, cache-or-degraded, chain connection.
type HealthChecker interface {
	Healthy() (ok bool, detail map[string]interface{})
}

// Router builds the mux.Router exposing the dashboard read API.
type Router struct {
	dash    *dashboard.Service
	hub     *broadcast.Hub
	health  HealthChecker
	metrics *metrics.Metrics
	log     *logging.Logger
}

// Config wires the collaborators a Router needs.
type Config struct {
	Dashboard      *dashboard.Service
	Hub            *broadcast.Hub
	Health         HealthChecker
	Metrics        *metrics.Metrics
	Logger         *logging.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

// New builds a mux.Router with the full middleware chain applied.
func New(cfg Config) *mux.Router {
	rtr := &Router{dash: cfg.Dashboard, hub: cfg.Hub, health: cfg.Health, metrics: cfg.Metrics, log: cfg.Logger.WithComponent("httpapi")}

	r := mux.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.Logger)
		limiter.StartCleanup(5 * time.Minute)
		r.Use(limiter.Handler())
	}

	r.HandleFunc("/health", rtr.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/statistics/realtime", rtr.handleRealtime).Methods(http.MethodGet)
	r.HandleFunc("/statistics/volume/{granularity}", rtr.handleVolumeSeries).Methods(http.MethodGet)
	r.HandleFunc("/statistics/addresses/top", rtr.handleTopAddresses).Methods(http.MethodGet)
	r.HandleFunc("/analytics/addresses/{direction}", rtr.handleDirectionalAddresses).Methods(http.MethodGet)
	r.HandleFunc("/statistics/anomalies", rtr.handleAnomalies).Methods(http.MethodGet)
	r.HandleFunc("/anomalies/timeseries/{granularity}", rtr.handleAnomalySeries).Methods(http.MethodGet)
	r.HandleFunc("/statistics/network", rtr.handleNetworkStats).Methods(http.MethodGet)
	r.HandleFunc("/statistics/distribution/token", rtr.handleTokenDistribution).Methods(http.MethodGet)
	r.HandleFunc("/ws", rtr.hub.ServeWS)

	return r
}

func (rtr *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok := true
	var detail map[string]interface{}
	if rtr.health != nil {
		ok, detail = rtr.health.Healthy()
	}
	status := "ok"
	code := http.StatusOK
	if !ok {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "msq-tx-monitor",
		"timestamp": time.Now().UTC(),
		"detail":    detail,
	})
}

func (rtr *Router) handleRealtime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := dashboard.RealtimeStatsQuery{Token: q.Get("token")}
	if hours := q.Get("hours"); hours != "" {
		if n, err := strconv.Atoi(hours); err == nil {
			start := time.Now().UTC().Add(-time.Duration(n) * time.Hour)
			query.StartDate = &start
		}
	}

	result, err := rtr.dash.RealtimeStats(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleVolumeSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gran := granularityFromPath(mux.Vars(r)["granularity"])
	query := dashboard.SeriesQuery{Granularity: gran, Token: q.Get("token"), Limit: atoiDefault(q.Get("limit"), 0)}

	result, err := rtr.dash.VolumeSeries(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleAnomalySeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	gran := granularityFromPath(mux.Vars(r)["granularity"])
	query := dashboard.SeriesQuery{Granularity: gran, Token: q.Get("token"), Limit: atoiDefault(q.Get("limit"), 0)}

	result, err := rtr.dash.AnomalySeries(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := dashboard.TopAddressQuery{
		Metric:    dashboard.MetricVolume,
		Timeframe: dashboard.Timeframe(q.Get("timeframe")),
		Token:     q.Get("token"),
		Limit:     atoiDefault(q.Get("limit"), 50),
	}
	if query.Timeframe == "" {
		query.Timeframe = dashboard.Timeframe30d
	}
	result, err := rtr.dash.TopAddresses(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleTopAddresses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := dashboard.TopAddressQuery{
		Metric:    dashboard.Metric(q.Get("metric")),
		Timeframe: dashboard.Timeframe(q.Get("timeframe")),
		Token:     q.Get("token"),
		Limit:     atoiDefault(q.Get("limit"), 50),
	}
	if query.Metric == "" {
		query.Metric = dashboard.MetricVolume
	}
	if query.Timeframe == "" {
		query.Timeframe = dashboard.Timeframe30d
	}

	result, err := rtr.dash.TopAddresses(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleDirectionalAddresses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	direction := mux.Vars(r)["direction"]
	if direction != "senders" && direction != "receivers" {
		writeError(w, http.StatusNotFound, errUnknownDirection)
		return
	}
	dir := "sent"
	if direction == "receivers" {
		dir = "received"
	}

	timeframe := dashboard.Timeframe(q.Get("timeframe"))
	if timeframe == "" {
		timeframe = dashboard.Timeframe24h
	}
	query := dashboard.TopAddressQuery{
		Metric:    dashboard.MetricVolume,
		Timeframe: timeframe,
		Token:     q.Get("token"),
		Limit:     atoiDefault(q.Get("limit"), 50),
		Direction: dir,
	}

	result, err := rtr.dash.TopAddresses(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleNetworkStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := dashboard.Timeframe(q.Get("window"))
	if window == "" {
		window = dashboard.Timeframe24h
	}
	result, err := rtr.dash.NetworkStats(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func (rtr *Router) handleTokenDistribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := dashboard.Timeframe(q.Get("window"))
	if window == "" {
		window = dashboard.Timeframe24h
	}
	result, err := rtr.dash.TokenDistribution(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeEnvelope(w, result, q)
}

func granularityFromPath(seg string) dashboard.Granularity {
	switch seg {
	case "minutes", "minute":
		return dashboard.GranularityMinute
	case "hourly", "hour":
		return dashboard.GranularityHour
	case "daily", "day":
		return dashboard.GranularityDay
	case "weekly", "week":
		return dashboard.GranularityWeek
	default:
		return dashboard.GranularityHour
	}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeEnvelope(w http.ResponseWriter, data interface{}, filters map[string][]string) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":      data,
		"filters":   flattenFilters(filters),
		"timestamp": time.Now().UTC(),
		"cached":    false,
	})
}

func flattenFilters(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": err.Error(),
	})
}

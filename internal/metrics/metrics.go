package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnssviz_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gnssviz_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	ephemerisSatellites = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gnssviz_ephemeris_satellites",
			Help: "Number of satellites in the currently loaded ephemeris set.",
		},
	)

	ephemerisAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gnssviz_ephemeris_age_seconds",
			Help: "Age of the currently loaded ephemeris set in seconds.",
		},
	)

	ephemerisSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnssviz_ephemeris_skipped_records_total",
			Help: "Feed records dropped during ingestion, by reason.",
		},
		[]string{"reason"},
	)

	propagationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gnssviz_propagation_duration_seconds",
			Help:    "Duration of a full-constellation propagation pass.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	propagationFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gnssviz_propagation_fallback_total",
			Help: "Satellite propagations that used the circular Keplerian fallback.",
		},
	)

	dopUnavailableTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnssviz_dop_unavailable_total",
			Help: "DOP computations that returned the unavailable sentinel, by reason.",
		},
		[]string{"reason"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnssviz_stream_connections_total",
			Help: "SSE stream connect/disconnect events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gnssviz_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnssviz_stream_errors_total",
			Help: "SSE stream errors, by reason.",
		},
		[]string{"reason"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gnssviz_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gnssviz_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		ephemerisSatellites,
		ephemerisAgeSeconds,
		ephemerisSkippedTotal,
		propagationDuration,
		propagationFallbackTotal,
		dopUnavailableTotal,
		streamConnectionsTotal,
		streamsActive,
		streamErrorsTotal,
		streamMessagesTotal,
		streamBytesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetEphemerisCount records the size of the loaded ephemeris set.
func SetEphemerisCount(n int) {
	ephemerisSatellites.Set(float64(n))
}

// SetEphemerisAge records the age of the loaded ephemeris set.
func SetEphemerisAge(seconds float64) {
	ephemerisAgeSeconds.Set(seconds)
}

// IncEphemerisSkipped counts a dropped feed record.
// Reasons: "epoch", "elements".
func IncEphemerisSkipped(reason string) {
	ephemerisSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordPropagation records one full-constellation propagation pass and the
// number of satellites that needed the circular fallback.
func RecordPropagation(d time.Duration, fallbacks int) {
	propagationDuration.Observe(d.Seconds())
	propagationFallbackTotal.Add(float64(fallbacks))
}

// IncDOPUnavailable counts a sentinel DOP result.
// Reasons: "too_few_satellites", "singular", "degenerate".
func IncDOPUnavailable(reason string) {
	dopUnavailableTotal.WithLabelValues(reason).Inc()
}

// IncStreamConnections counts a stream lifecycle event ("connect"/"disconnect").
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the active stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the active stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// IncStreamMessages counts one SSE data message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes written to a stream.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// knownRoutes are the exact paths served by the API; anything else collapses
// to "other" to keep label cardinality bounded against bot/scanner traffic.
var knownRoutes = map[string]bool{
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/ephemeris/metadata": true,
	"/api/v1/ephemeris/refresh":  true,
	"/api/v1/positions":          true,
	"/api/v1/sky":                true,
	"/api/v1/dop":                true,
	"/api/v1/session":            true,
	"/api/v1/stream/positions":   true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/satellites/") {
		return "/api/v1/satellites/{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		route := normalizeRoute(r.URL.Path)
		code := strconv.Itoa(rw.statusCode)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}

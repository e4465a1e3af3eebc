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
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "atrium",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atrium",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "atrium",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "atrium",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Total number of messages sent.",
		},
	)

	deliveriesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "atrium",
			Subsystem: "messaging",
			Name:      "deliveries_created_total",
			Help:      "Total number of per-recipient delivery rows created.",
		},
	)

	notificationDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atrium",
			Subsystem: "notifications",
			Name:      "dispatches_total",
			Help:      "Total number of webhook dispatch attempts.",
		},
		[]string{"status"},
	)

	dashboardResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "atrium",
			Subsystem: "dashboards",
			Name:      "resolutions_total",
			Help:      "Total number of dashboard resolutions by tier.",
		},
		[]string{"tier"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		messagesSent,
		deliveriesCreated,
		notificationDispatches,
		dashboardResolutions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordMessageSent counts a sent message and its delivery fan-out.
func RecordMessageSent(deliveries int) {
	messagesSent.Inc()
	if deliveries > 0 {
		deliveriesCreated.Add(float64(deliveries))
	}
}

// RecordNotificationDispatch counts a webhook dispatch attempt.
func RecordNotificationDispatch(success bool) {
	status := "failed"
	if success {
		status = "delivered"
	}
	notificationDispatches.WithLabelValues(status).Inc()
}

// RecordDashboardResolution counts a resolution by the tier that won.
func RecordDashboardResolution(tier string) {
	if tier == "" {
		tier = "unknown"
	}
	dashboardResolutions.WithLabelValues(tier).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so metric labels stay bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "api" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/api"
	}
	resource := parts[1]
	switch len(parts) {
	case 2:
		return "/api/" + resource
	case 3:
		return "/api/" + resource + "/:id"
	default:
		return "/api/" + resource + "/:id/" + parts[3]
	}
}

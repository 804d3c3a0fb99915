package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pomelo"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin_http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin_http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Currently open client sessions.",
		},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Closed client sessions by reason.",
		},
		[]string{"reason"},
	)
	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packet",
			Name:      "total",
			Help:      "Packets by direction and kind.",
		},
		[]string{"direction", "kind"},
	)
	packetsIgnored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "packet",
			Name:      "ignored_total",
			Help:      "Inbound packets ignored because they arrived in the wrong session state.",
		},
		[]string{"kind", "state"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message",
			Name:      "decode_failures_total",
			Help:      "Dropped data packets by failure stage.",
		},
		[]string{"stage"},
	)
	requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "requests_total",
			Help:      "Dispatched requests by route and response code.",
		},
		[]string{"route", "code"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "route",
			Name:      "request_duration_seconds",
			Help:      "Handler duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route", "code"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			sessionsActive,
			sessionsClosed,
			packets,
			packetsIgnored,
			decodeFailures,
			requests,
			requestDuration,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordSessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func RecordSessionClosed(reason string) {
	RegisterMetrics()
	sessionsActive.Dec()
	sessionsClosed.WithLabelValues(reason).Inc()
}

func RecordPacket(direction, kind string) {
	RegisterMetrics()
	packets.WithLabelValues(direction, kind).Inc()
}

func RecordIgnoredPacket(kind, state string) {
	RegisterMetrics()
	packetsIgnored.WithLabelValues(kind, state).Inc()
}

func RecordDecodeFailure(stage string) {
	RegisterMetrics()
	decodeFailures.WithLabelValues(stage).Inc()
}

func RecordRequest(route string, code int, duration time.Duration) {
	RegisterMetrics()
	codeLabel := strconv.Itoa(code)
	requests.WithLabelValues(route, codeLabel).Inc()
	requestDuration.WithLabelValues(route, codeLabel).Observe(duration.Seconds())
}

package services

import (
	"strconv"
	"time"

	"bootkeeper/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootkeeper_http_requests_total",
			Help: "Requests served by the supervisor API",
		},
		[]string{"path", "code"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootkeeper_http_request_duration_seconds",
			Help:    "Duration of supervisor API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	proxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootkeeper_proxy_requests_total",
			Help: "Requests forwarded by the reverse proxy",
		},
		[]string{"route", "code"},
	)

	proxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bootkeeper_proxy_request_duration_seconds",
			Help:    "Time until the proxied response finished",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	roleUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bootkeeper_role_up",
			Help: "Role liveness: 1 up, 0 down, -1 unknown",
		},
		[]string{"role"},
	)

	processLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootkeeper_process_launches_total",
			Help: "Process launches by name and result",
		},
		[]string{"name", "result"},
	)
)

func init() {
	prometheus.MustRegister(requestCount)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(proxyRequests)
	prometheus.MustRegister(proxyDuration)
	prometheus.MustRegister(roleUp)
	prometheus.MustRegister(processLaunches)
}

func RecordRequest(path string, code int, elapsed time.Duration) {
	requestCount.WithLabelValues(path, strconv.Itoa(code)).Inc()
	requestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

// ProxyMetrics feeds proxied request outcomes into prometheus.
type ProxyMetrics struct{}

func (ProxyMetrics) ObserveProxy(route string, code int, elapsed time.Duration) {
	proxyRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	proxyDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func setRoleGauge(role string, status models.HealthStatus) {
	v := -1.0
	switch status {
	case models.HealthUp:
		v = 1
	case models.HealthDown:
		v = 0
	}
	roleUp.WithLabelValues(role).Set(v)
}

func recordLaunch(name string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	processLaunches.WithLabelValues(name, result).Inc()
}

// Package metrics holds the prometheus collectors for the storefront client.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the client's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	transportAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Total number of HTTP attempts made by the transport.",
		},
		[]string{"method", "endpoint", "outcome"},
	)

	transportRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Total number of retried HTTP attempts.",
		},
		[]string{"reason"},
	)

	transportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "transport",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual HTTP attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "endpoint"},
	)

	sessionInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "session",
			Name:      "invalidations_total",
			Help:      "Total number of session teardowns by reason.",
		},
		[]string{"reason"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "checkout",
			Name:      "attempts_total",
			Help:      "Total number of checkout attempts by payment method and outcome.",
		},
		[]string{"method", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		transportAttempts,
		transportRetries,
		transportDuration,
		sessionInvalidations,
		checkouts,
	)
}

// RecordAttempt records one transport attempt. status is 0 when no response
// was received.
func RecordAttempt(method, rawURL string, status int, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	endpoint := canonicalEndpoint(rawURL)
	outcome := "error"
	if status > 0 {
		outcome = strconv.Itoa(status)
	}
	method = strings.ToUpper(method)
	transportAttempts.WithLabelValues(method, endpoint, outcome).Inc()
	transportDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRetry records a retried attempt.
func RecordRetry(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	transportRetries.WithLabelValues(reason).Inc()
}

// RecordSessionInvalidation records a session teardown.
func RecordSessionInvalidation(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	sessionInvalidations.WithLabelValues(reason).Inc()
}

// RecordCheckout records a checkout attempt outcome.
func RecordCheckout(method string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	checkouts.WithLabelValues(method, outcome).Inc()
}

// WriteTextfile writes the current state of Registry in the text exposition
// format, for node-exporter style collection of short-lived processes.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

// canonicalEndpoint keeps the first path segment after the API prefix so
// resource ids never become label values.
func canonicalEndpoint(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		raw = raw[i+3:]
		if j := strings.Index(raw, "/"); j >= 0 {
			raw = raw[j:]
		} else {
			raw = "/"
		}
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] == "api" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + parts[0]
}

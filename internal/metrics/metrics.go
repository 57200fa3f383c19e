// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus instrumentation for the propagation
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Propagation job metrics
	jobsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "savid_propagation_jobs_started_total",
		Help: "Total number of background propagation jobs accepted",
	})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savid_propagation_jobs_finished_total",
		Help: "Background propagation jobs finished by outcome",
	}, []string{"outcome"}) // outcome=complete|failed

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savid_propagation_jobs_active",
		Help: "Background propagation jobs currently pending or running",
	})

	transitionsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "savid_propagation_transitions_rejected_total",
		Help: "Attempts to overwrite a terminal session state",
	})

	// Delivery metrics
	framesDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savid_frames_delivered_total",
		Help: "Frame results delivered by delivery mode",
	}, []string{"mode"}) // mode=stream|background

	artifactBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "savid_artifact_bytes",
		Help:    "Size of written segment artifacts in bytes",
		Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
	})

	// File serving metrics
	fileRequestsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "savid_file_requests_denied_total",
		Help: "Static file requests denied by reason",
	}, []string{"reason"}) // reason=method_not_allowed|path_escape|directory_listing|not_found|internal_error

	fileRequestsAllowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "savid_file_requests_allowed_total",
		Help: "Static file requests served successfully",
	})

	// HTTP ingress metrics
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "savid_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "savid_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})
)

// Recorder implements the metrics interfaces of the session and propagate
// packages on top of the package-level collectors.
type Recorder struct{}

func (Recorder) IncJobStarted() {
	jobsStartedTotal.Inc()
	activeJobs.Inc()
}

func (Recorder) IncJobFinished(outcome string) {
	jobsFinishedTotal.WithLabelValues(outcome).Inc()
	activeJobs.Dec()
}

func (Recorder) IncTransitionRejected() { transitionsRejectedTotal.Inc() }

func (Recorder) AddFramesDelivered(mode string, n int) {
	framesDeliveredTotal.WithLabelValues(mode).Add(float64(n))
}

func (Recorder) ObserveArtifactBytes(n int) { artifactBytes.Observe(float64(n)) }

// RecordFileRequestDenied counts one denied static file request.
func RecordFileRequestDenied(reason string) { fileRequestsDenied.WithLabelValues(reason).Inc() }

// RecordFileRequestAllowed counts one served static file request.
func RecordFileRequestAllowed() { fileRequestsAllowed.Inc() }

// ObserveHTTPRequest records latency for one completed HTTP request.
func ObserveHTTPRequest(method, path, status string, seconds float64) {
	httpRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}

// HTTPInFlightInc tracks a request entering the handler stack.
func HTTPInFlightInc() { httpRequestsInFlight.Inc() }

// HTTPInFlightDec tracks a request leaving the handler stack.
func HTTPInFlightDec() { httpRequestsInFlight.Dec() }

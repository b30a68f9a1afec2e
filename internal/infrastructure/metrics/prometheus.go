// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "typereel"

var (
	// CacheOperationsTotal tracks result cache operations.
	// Labels:
	//   - operation: get, put, evict, expire
	//   - status: hit, miss, success
	//   - kind: image, video
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of result cache operations",
		},
		[]string{"operation", "status", "kind"},
	)

	// SharedTierOperationsTotal tracks lookups and publishes against Redis + MinIO.
	// Labels:
	//   - operation: lookup, publish
	//   - status: hit, miss, success, error
	SharedTierOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shared_tier_operations_total",
			Help:      "Total number of shared artifact tier operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks singleflight behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// JobsInFlight is the number of render jobs currently executing.
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of render jobs currently executing",
		},
	)

	// JobsTotal counts finished render jobs.
	// Labels:
	//   - kind: image, video
	//   - status: succeeded, failed
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of finished render jobs",
		},
		[]string{"kind", "status"},
	)

	// StageDuration observes how long each pipeline stage takes.
	// Labels:
	//   - stage: session_wait, capture, encode
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of render pipeline stages",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// SessionEventsTotal tracks rendering session lifecycle events.
	// Labels:
	//   - event: created, create_failed, discarded
	SessionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Total number of rendering session lifecycle events",
		},
		[]string{"event"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpPut    = "put"
	CacheOpEvict  = "evict"
	CacheOpExpire = "expire"
)

// Shared tier operation constants.
const (
	SharedOpLookup  = "lookup"
	SharedOpPublish = "publish"
)

// Job status constants.
const (
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// Stage constants.
const (
	StageSessionWait = "session_wait"
	StageCapture     = "capture"
	StageEncode      = "encode"
)

// Session event constants.
const (
	SessionCreated      = "created"
	SessionCreateFailed = "create_failed"
	SessionDiscarded    = "discarded"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

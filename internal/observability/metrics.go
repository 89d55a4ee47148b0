// Package observability holds the Prometheus instruments for the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rides_created_total",
		Help: "Rides accepted into the system, idempotent replays excluded.",
	})

	RidesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rides_matched_total",
		Help: "Rides successfully assigned a driver.",
	})

	DispatchCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_cancelled_total",
		Help: "Rides cancelled because no driver was found within the radius ceiling.",
	})

	DispatchRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_requeued_total",
		Help: "Stalled searching rides re-enqueued by the reaper.",
	})

	LocationUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driver_location_updates_total",
		Help: "Driver location pings ingested.",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_settlements_total",
		Help: "Payment settlements by terminal status.",
	}, []string{"status"})

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_match_seconds",
		Help:    "Time from dispatch pickup to assignment outcome.",
		Buckets: prometheus.DefBuckets,
	})
)

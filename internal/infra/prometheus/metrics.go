package prometheus

import (
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine counters, registered on the default registry and scraped through the
// metrics server in this package.
var (
	AllocationsTotal = promauto.NewCounterVec(prom.CounterOpts{
		Name: "powerlink_allocations_total",
		Help: "Link allocation attempts by outcome.",
	}, []string{"outcome"})

	AllocationRetries = promauto.NewCounter(prom.CounterOpts{
		Name: "powerlink_allocation_retries_total",
		Help: "Random-code insert retries caused by uniqueness collisions.",
	})

	CacheLookups = promauto.NewCounterVec(prom.CounterOpts{
		Name: "powerlink_cache_lookups_total",
		Help: "Resolver cache lookups by result (hit, miss, unavailable).",
	}, []string{"result"})

	Resolutions = promauto.NewCounterVec(prom.CounterOpts{
		Name: "powerlink_resolutions_total",
		Help: "Link resolutions by state (found, expired, not_found).",
	}, []string{"state"})

	RateLimitDenied = promauto.NewCounter(prom.CounterOpts{
		Name: "powerlink_ratelimit_denied_total",
		Help: "Requests denied by the rate limiter.",
	})

	ReconcilerPurged = promauto.NewCounter(prom.CounterOpts{
		Name: "powerlink_reconciler_purged_total",
		Help: "Expired cache entries purged by the reconciliation task.",
	})

	ReconcilerRuns = promauto.NewCounter(prom.CounterOpts{
		Name: "powerlink_reconciler_runs_total",
		Help: "Completed reconciliation passes.",
	})
)

package offcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offcache",
			Name:      "cache_hits_total",
			Help:      "Total number of requests served from the cache",
		},
		[]string{"partition"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offcache",
			Name:      "cache_misses_total",
			Help:      "Total number of cache lookups that found no entry",
		},
		[]string{"partition"},
	)

	fetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offcache",
			Name:      "origin_fetch_errors_total",
			Help:      "Total number of failed origin fetches",
		},
	)

	storeWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "offcache",
			Name:      "store_write_failures_total",
			Help:      "Total number of swallowed best-effort cache write failures",
		},
	)
)

package datacache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "covloupe",
		Subsystem: "datacache",
		Name:      "hits_total",
		Help:      "Lookups answered from the cache without reparsing.",
	})

	cacheDigestChecks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "covloupe",
		Subsystem: "datacache",
		Name:      "digest_checks_total",
		Help:      "Content digests computed because the file signature changed.",
	})

	cacheReloads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "covloupe",
		Subsystem: "datacache",
		Name:      "reloads_total",
		Help:      "Resultsets parsed and stored in the cache.",
	})

	cacheUncachedLoads = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "covloupe",
		Subsystem: "datacache",
		Name:      "uncached_loads_total",
		Help:      "Loads attempted without caching because stat or digest failed.",
	})

	cacheLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "covloupe",
		Subsystem: "datacache",
		Name:      "load_errors_total",
		Help:      "Resultset loads that returned an error.",
	})
)

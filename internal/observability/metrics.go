package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	cacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cache_hits_total",
			Help: "Total number of tiered cache hits, by tier served.",
		},
		[]string{"tier"},
	)
	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_cache_misses_total",
			Help: "Total number of reads that missed every cache tier.",
		},
	)
	promotionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_cache_promotions_total",
			Help: "Total number of records promoted into the hot tier.",
		},
	)
	downgradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_cache_downgrades_total",
			Help: "Total number of records aged out of a tier by the sweeps.",
		},
		[]string{"from"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events processed.",
		},
		[]string{"event"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		promotionsTotal,
		downgradesTotal,
		wsEventsTotal,
		wsActiveConnections,
	)
}

func CacheHit(tier string)  { cacheHitsTotal.WithLabelValues(tier).Inc() }
func CacheMiss()            { cacheMissesTotal.Inc() }
func Promotion()            { promotionsTotal.Inc() }
func Downgrade(from string) { downgradesTotal.WithLabelValues(from).Inc() }
func WSEvent(event string)  { wsEventsTotal.WithLabelValues(event).Inc() }
func WSConnect()            { wsActiveConnections.Inc() }
func WSDisconnect()         { wsActiveConnections.Dec() }

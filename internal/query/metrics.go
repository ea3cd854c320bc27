package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cppgraph_query_requests_total",
		Help: "Query operations by name and result",
	}, []string{"op", "result"})

	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cppgraph_query_duration_seconds",
		Help:    "Query latency by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	searchCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cppgraph_query_search_cache_total",
		Help: "Semantic search cache lookups by result",
	}, []string{"result"})
)

package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesTotal counts processed files by outcome
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cppgraph_indexer_files_total",
		Help: "Files processed by the indexer, by outcome",
	}, []string{"outcome"})

	// fileDuration tracks per-file indexing latency
	fileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cppgraph_indexer_file_duration_seconds",
		Help:    "Time to parse, embed and store one file",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// edgesTotal counts parsed relationships by kind and resolution result
	edgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cppgraph_indexer_edges_total",
		Help: "Parsed relationships by kind and whether they were stored or dropped",
	}, []string{"kind", "result"})

	// runsTotal counts directory runs by result
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cppgraph_indexer_runs_total",
		Help: "Indexing runs by result",
	}, []string{"result"})
)

const (
	outcomeIndexed  = "indexed"
	outcomeSkipped  = "skipped"
	outcomeFallback = "fallback"
	outcomeFailed   = "failed"
	outcomeRemoved  = "removed"
)

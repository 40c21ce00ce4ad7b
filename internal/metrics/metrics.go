// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the proxy pipeline.
// Labels stay low-cardinality: endpoint names and outcome codes only, never
// URLs or request ids.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled requests by endpoint and status code.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgate_requests_total",
		Help: "Total number of handled requests, by endpoint and status code.",
	}, []string{"endpoint", "code"})

	// RequestDuration observes handler latency by endpoint.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsgate_request_duration_seconds",
		Help:    "Request latencies in seconds, by endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	upstreamFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hlsgate_upstream_fetch_duration_seconds",
		Help:    "Upstream fetch latencies in seconds, by outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// DecryptTotal counts segment decryptions by method and outcome.
	DecryptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgate_decrypt_total",
		Help: "Total number of segment decryptions, by method and outcome.",
	}, []string{"method", "outcome"})

	// InitCacheHits counts init-segment cache hits.
	InitCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgate_init_cache_hits_total",
		Help: "Total number of init-segment cache hits.",
	})

	// InitCacheMisses counts init-segment cache misses, including those
	// coalesced onto an in-flight fetch.
	InitCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgate_init_cache_misses_total",
		Help: "Total number of init-segment cache misses.",
	})

	// InitCacheShared counts lookups coalesced onto an in-flight fetch.
	InitCacheShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgate_init_cache_shared_total",
		Help: "Total number of lookups coalesced onto an in-flight fetch.",
	})

	// InitCacheEvictions counts LRU evictions.
	InitCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsgate_init_cache_evictions_total",
		Help: "Total number of init-segment cache evictions.",
	})

	// RewrittenLines counts playlist lines rewritten, by rule.
	RewrittenLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsgate_rewritten_lines_total",
		Help: "Total number of playlist lines rewritten, by rule.",
	}, []string{"rule"})
)

// FetchTimer times a single upstream fetch.
type FetchTimer struct {
	start time.Time
	done  bool
}

// StartUpstreamFetch begins timing an upstream fetch.
func StartUpstreamFetch() *FetchTimer {
	return &FetchTimer{start: time.Now()}
}

// Done records the fetch with its outcome label ("ok", "error", or a status
// code). Subsequent calls are no-ops.
func (t *FetchTimer) Done(outcome string) {
	if t == nil || t.done {
		return
	}
	t.done = true
	upstreamFetchDuration.WithLabelValues(outcome).Observe(time.Since(t.start).Seconds())
}

// Package observability bridges the engine's lifecycle hooks to Prometheus
// metrics. The collector is passive: it only observes events the engine
// already emits, so enabling it never changes apply semantics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/tree"
)

// Collector exposes engine activity as Prometheus metrics.
type Collector struct {
	applied   prometheus.Counter
	filtered  prometheus.Counter
	failed    prometheus.Counter
	followUps prometheus.Counter
	steps     prometheus.Histogram

	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	cacheBypasses prometheus.Counter
}

// NewCollector creates a collector and registers its metrics with the
// given registerer. Pass a dedicated registry per engine; the collector
// never touches the process-global default.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_transactions_applied_total",
			Help: "Transactions accepted by the apply pipeline, including follow-ups.",
		}),
		filtered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_transactions_filtered_total",
			Help: "Transactions vetoed by a plugin filter hook.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_transactions_failed_total",
			Help: "Transactions aborted by a step or plugin error.",
		}),
		followUps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_follow_up_transactions_total",
			Help: "Follow-up transactions appended by plugins.",
		}),
		steps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weft_transaction_steps",
			Help:    "Steps per applied transaction.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_query_cache_hits_total",
			Help: "Query cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_query_cache_misses_total",
			Help: "Query cache misses.",
		}),
		cacheBypasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weft_query_cache_bypasses_total",
			Help: "Queries whose key could not be canonically serialized.",
		}),
	}
	reg.MustRegister(
		c.applied, c.filtered, c.failed, c.followUps, c.steps,
		c.cacheHits, c.cacheMisses, c.cacheBypasses,
	)
	return c
}

// Hooks returns lifecycle hooks feeding this collector. Merge with any
// application hooks before handing them to the engine.
func (c *Collector) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransactionApplied: func(_ context.Context, ev *domain.TransactionEvent) {
			c.applied.Inc()
			c.steps.Observe(float64(ev.Steps))
		},
		OnTransactionFiltered: func(_ context.Context, _ *domain.TransactionEvent) {
			c.filtered.Inc()
		},
		OnTransactionFailed: func(_ context.Context, _ *domain.TransactionEvent) {
			c.failed.Inc()
		},
		OnFollowUp: func(_ context.Context, _ *domain.TransactionEvent) {
			c.followUps.Inc()
		},
	}
}

// CacheHook returns a tree cache hook feeding this collector. Pass it to
// tree.WithCacheHook when constructing pools.
func (c *Collector) CacheHook() func(tree.CacheEvent) {
	return func(ev tree.CacheEvent) {
		switch {
		case ev.Bypass:
			c.cacheBypasses.Inc()
		case ev.Hit:
			c.cacheHits.Inc()
		default:
			c.cacheMisses.Inc()
		}
	}
}

// Package metrics holds Prometheus instruments used across the engine.
// All collectors are registered with the global registry, so importing this
// package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolveTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_resolve_total",
			Help: "Cumulative number of host-to-subsite resolutions.",
		})

	ResolveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_resolve_errors_total",
			Help: "Cumulative number of failed resolutions.",
		})

	AmbiguousDomainTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_ambiguous_domain_total",
			Help: "Hosts that matched domains of more than one subsite.",
		})

	HostMapRebuildTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_hostmap_rebuild_total",
			Help: "Cumulative number of host-map artifact rebuilds.",
		})

	AccessibleCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_accessible_cache_hits_total",
			Help: "Accessible-subsites lookups served from the memo.",
		})

	AccessibleCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_accessible_cache_misses_total",
			Help: "Accessible-subsites lookups that hit the database.",
		})

	DuplicatedNodesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subsite_duplicated_nodes_total",
			Help: "Content nodes cloned by cross-subsite duplication.",
		})
)

func init() {
	prometheus.MustRegister(
		ResolveTotal,
		ResolveErrorsTotal,
		AmbiguousDomainTotal,
		HostMapRebuildTotal,
		AccessibleCacheHits,
		AccessibleCacheMisses,
		DuplicatedNodesTotal,
	)
}

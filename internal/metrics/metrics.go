// Package metrics exposes daygrid's Prometheus instrumentation. All
// collectors are registered on the default registry via promauto and
// served by the web server's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LayoutPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daygrid_layout_passes_total",
		Help: "Total number of Arrange invocations.",
	})

	EventsPositioned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daygrid_events_positioned_total",
		Help: "Total number of events given a rectangle by the layout engine.",
	})

	MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daygrid_malformed_events_total",
		Help: "Total number of events dropped for missing a start or end instant.",
	})

	ClustersFormed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daygrid_clusters_total",
		Help: "Total number of overlap clusters produced across layout passes.",
	})

	StoreMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daygrid_store_mutations_total",
		Help: "Total number of store mutations, labelled by operation.",
	}, []string{"op"})

	ObserverNotifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daygrid_store_notifications_total",
		Help: "Total number of change notifications delivered to observers.",
	})

	FeedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daygrid_feed_fetches_total",
		Help: "Total number of ICS feed fetches, labelled by outcome.",
	}, []string{"outcome"})
)

package proxy

import (
	"github.com/prometheus/client_golang/prometheus"

	"pagedecor/decor"
)

type metrics struct {
	registry       *prometheus.Registry
	pages          *prometheus.CounterVec
	cache          *prometheus.CounterVec
	upstreamErrors *prometheus.CounterVec
	externalImages prometheus.Counter
	tabRuns        prometheus.Counter
	tabFailures    prometheus.Counter
	indexFetches   prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagedecor_pages_decorated_total",
			Help: "Pages and fragments decorated, by route.",
		}, []string{"route"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagedecor_cache_requests_total",
			Help: "Decorated page cache lookups, by result.",
		}, []string{"result"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagedecor_upstream_errors_total",
			Help: "Failed upstream loads, by mode.",
		}, []string{"mode"}),
		externalImages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedecor_external_images_total",
			Help: "External image links rewritten into pictures.",
		}),
		tabRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedecor_tab_runs_total",
			Help: "Tab runs folded into tabs blocks.",
		}),
		tabFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedecor_tab_run_failures_total",
			Help: "Tab runs that could not be folded.",
		}),
		indexFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagedecor_index_page_fetches_total",
			Help: "Index pages requested from origins.",
		}),
	}
	m.registry.MustRegister(
		m.pages, m.cache, m.upstreamErrors,
		m.externalImages, m.tabRuns, m.tabFailures, m.indexFetches,
	)
	return m
}

func (m *metrics) observe(route string, rep decor.Report) {
	m.pages.WithLabelValues(route).Inc()
	m.externalImages.Add(float64(rep.ExternalImages))
	m.tabRuns.Add(float64(rep.TabRuns))
	m.tabFailures.Add(float64(rep.FailedTabRuns))
}

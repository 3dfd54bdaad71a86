// Package metrics exposes Prometheus collectors for crawl runs.
package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/docutag/crawler/models"
)

// Metrics groups the crawler collectors. A nil *Metrics records nothing.
type Metrics struct {
	crawls               *prometheus.CounterVec
	crawlDuration        prometheus.Histogram
	exercises            prometheus.Counter
	tags                 *prometheus.CounterVec
	conversionFailures   prometheus.Counter
	unresolvedCategories prometheus.Counter
	relativeLinks        prometheus.Counter
}

// New registers the crawler collectors on reg under the given namespace
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		crawls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawls_total",
			Help:      "Crawl runs by outcome.",
		}, []string{"status"}),
		crawlDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_duration_seconds",
			Help:      "Duration of crawl runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		exercises: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exercises_total",
			Help:      "Exercises built.",
		}),
		tags: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_total",
			Help:      "Tags attached to exercises, by kind and category.",
		}, []string{"kind", "category"}),
		conversionFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_failures_total",
			Help:      "Descriptions that could not be converted to HTML.",
		}),
		unresolvedCategories: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unresolved_categories_total",
			Help:      "Category ids referenced by tasks but missing from the course catalog.",
		}),
		relativeLinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relative_links_total",
			Help:      "Links left relative after rewriting.",
		}),
	}
}

// RegisterDBStats exposes connection pool statistics of db
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB, dbName string) error {
	return reg.Register(collectors.NewDBStatsCollector(db, dbName))
}

// ObserveCrawl records the outcome of one crawl run
func (m *Metrics) ObserveCrawl(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.crawls.WithLabelValues(status).Inc()
	m.crawlDuration.Observe(elapsed.Seconds())
}

// ObserveExercise records an exercise and its tags
func (m *Metrics) ObserveExercise(ex models.Exercise) {
	if m == nil {
		return
	}
	m.exercises.Inc()
	for _, tag := range ex.Tags {
		if tag.AutoGenerated {
			m.tags.WithLabelValues("auto", tag.CategoryID).Inc()
			continue
		}
		m.tags.WithLabelValues("declared", models.OwnCategories[tag.Category]).Inc()
	}
}

// ConversionFailed counts a description whose conversion failed
func (m *Metrics) ConversionFailed() {
	if m == nil {
		return
	}
	m.conversionFailures.Inc()
}

// UnresolvedCategories counts category ids that did not resolve
func (m *Metrics) UnresolvedCategories(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unresolvedCategories.Add(float64(n))
}

// RelativeLinks counts links that stayed relative
func (m *Metrics) RelativeLinks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.relativeLinks.Add(float64(n))
}

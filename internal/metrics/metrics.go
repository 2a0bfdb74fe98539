// Package metrics exports loader and query activity to Prometheus
package metrics

import (
	"io"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/conduit-lang/autorelated/internal/orm/relationships"
)

var tablePattern = regexp.MustCompile(`FROM "([^"]+)"`)

// QueryObserver records executed queries. It satisfies relationships.Observer.
type QueryObserver struct {
	queries  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ relationships.Observer = (*QueryObserver)(nil)

// NewQueryObserver registers the query metrics with reg
func NewQueryObserver(reg prometheus.Registerer) *QueryObserver {
	factory := promauto.With(reg)
	return &QueryObserver{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autorelated_queries_total",
				Help: "Total number of executed queries",
			},
			[]string{"table", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autorelated_query_duration_seconds",
				Help:    "Query latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"table"},
		),
	}
}

// ObserveQuery implements relationships.Observer
func (o *QueryObserver) ObserveQuery(query string, duration time.Duration, err error) {
	table := "unknown"
	if m := tablePattern.FindStringSubmatch(query); m != nil {
		table = m[1]
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	o.queries.WithLabelValues(table, status).Inc()
	o.duration.WithLabelValues(table).Observe(duration.Seconds())
}

// WriteText writes every metric family of g in the text exposition format
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
